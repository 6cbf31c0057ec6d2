// Package schedule provides a Readable that emits a Tick whenever a cron
// schedule fires.
//
// Expressions use the standard five cron fields, an optional leading seconds
// field, or a descriptor:
//
//	src, err := schedule.New(schedule.Config{
//		Expression: "*/5 * * * *",
//		MaxRuns:    12,
//	})
//
//	err = stream.Pipeline(ctx, src, stream.ForEach(func(t schedule.Tick) error {
//		return refresh(ctx, t.Time)
//	}))
//
// Ticks are produced on demand. While the consumer applies back-pressure no
// firings are recorded, and the next tick is the first firing after it
// catches up.
package schedule
