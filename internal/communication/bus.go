package communication

import (
	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/message"
)

// Bus carries the coordinator's application-wide events. Listeners do not
// need a reference to the Coordinator, only to its Bus.
//
// Each On* method returns a Subscription; call Unsubscribe to stop
// receiving events.
type Bus struct {
	messages   event.Listeners[message.Message]
	feedback   event.Listeners[message.Feedback]
	status     event.Listeners[message.StatusUpdate]
	connection event.Listeners[ConnectionStatus]
}

func newBus(onPanic event.PanicHandler) *Bus {
	b := &Bus{}
	b.messages.SetPanicHandler(onPanic)
	b.feedback.SetPanicHandler(onPanic)
	b.status.SetPanicHandler(onPanic)
	b.connection.SetPanicHandler(onPanic)
	return b
}

// OnMessage receives every message arriving on the generic channel.
func (b *Bus) OnMessage(fn func(message.Message)) event.Subscription {
	return b.messages.Add(fn)
}

// OnFeedback receives decoded {prefix}/feedback/{id} publications.
func (b *Bus) OnFeedback(fn func(message.Feedback)) event.Subscription {
	return b.feedback.Add(fn)
}

// OnStatus receives decoded {prefix}/status/... publications.
func (b *Bus) OnStatus(fn func(message.StatusUpdate)) event.Subscription {
	return b.status.Add(fn)
}

// OnConnectionStatus receives the aggregate status after every transport
// state change.
func (b *Bus) OnConnectionStatus(fn func(ConnectionStatus)) event.Subscription {
	return b.connection.Add(fn)
}
