// Package event provides typed listener registries for commlink components.
//
// Each registry dispatches to a snapshot of its listeners taken at emit
// time, in registration order. Registration returns a Subscription that
// removes the listener when Unsubscribe is called.
//
//	subs := client.OnMessage(func(m message.Message) { ... })
//	defer subs.Unsubscribe()
package event
