package event

import (
	"reflect"
	"testing"
)

func TestListeners_EmitOrder(t *testing.T) {
	var l Listeners[int]
	var got []string

	l.Add(func(v int) { got = append(got, "a") })
	l.Add(func(v int) { got = append(got, "b") })
	l.Add(func(v int) { got = append(got, "c") })

	l.Emit(1)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
}

func TestListeners_Unsubscribe(t *testing.T) {
	var l Listeners[string]
	calls := 0

	sub := l.Add(func(string) { calls++ })
	l.Emit("x")
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	l.Emit("y")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestListeners_AddDuringDispatchMissesCurrentPass(t *testing.T) {
	var l Listeners[int]
	var late []int

	l.Add(func(v int) {
		if v == 1 {
			l.Add(func(v int) { late = append(late, v) })
		}
	})

	l.Emit(1)
	if len(late) != 0 {
		t.Fatalf("listener added during dispatch was called in same pass: %v", late)
	}

	l.Emit(2)
	if !reflect.DeepEqual(late, []int{2}) {
		t.Errorf("late listener got %v, want [2]", late)
	}
}

func TestListeners_RemoveDuringDispatchKeepsPass(t *testing.T) {
	var l Listeners[int]
	var second Subscription
	calls := 0

	l.Add(func(int) { second.Unsubscribe() })
	second = l.Add(func(int) { calls++ })

	l.Emit(1)
	if calls != 1 {
		t.Errorf("removed listener should still receive current pass, calls = %d", calls)
	}

	l.Emit(2)
	if calls != 1 {
		t.Errorf("removed listener called after removal, calls = %d", calls)
	}
}

func TestListeners_PanicIsolated(t *testing.T) {
	var l Listeners[int]
	var recovered any
	reached := false

	l.SetPanicHandler(func(r any) { recovered = r })
	l.Add(func(int) { panic("boom") })
	l.Add(func(int) { reached = true })

	l.Emit(1)

	if !reached {
		t.Error("listener after panicking listener was not called")
	}
	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
}

func TestListeners_NilIgnored(t *testing.T) {
	var l Listeners[int]
	sub := l.Add(nil)
	sub.Unsubscribe()

	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestGroup_Unsubscribe(t *testing.T) {
	var l Listeners[int]
	var g Group
	calls := 0

	g.Add(l.Add(func(int) { calls++ }))
	g.Add(l.Add(func(int) { calls++ }))

	g.Unsubscribe()
	l.Emit(1)

	if calls != 0 {
		t.Errorf("calls = %d after group unsubscribe, want 0", calls)
	}
}
