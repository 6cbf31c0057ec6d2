// Package events provides the ordered observer registry streams use to
// publish their lifecycle signals.
//
// An Emitter keeps, per event name, the listeners in registration order.
// Emit delivers to a snapshot taken when it starts, so a listener removed
// during dispatch still receives that emission and a listener added during
// dispatch only receives later ones. Once listeners are delivered at most one
// time even when Emit is re-entered from a listener.
//
// Emitting Error with no listener panics with *UnhandledError.
//
//	e := events.New(events.WithLogger(logger))
//	e.On(events.Data, func(p any) { fmt.Println(p) })
//	e.Emit(events.Data, "hello")
package events
