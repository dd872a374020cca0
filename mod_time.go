package physarum

import (
	"time"
)

type Time struct {
	Time  time.Time
	Dt    time.Duration
	Frame uint64
}

type TimeModule struct {
	// Now replaces the wall clock, for tests.
	Now func() time.Time
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	now := mod.Now
	if now == nil {
		now = time.Now
	}
	cmd.AddResources(&Time{Time: now()})
	app.UseSystem(
		System(func(t *Time, cmd *Commands) {
			n := now()
			t.Dt = n.Sub(t.Time)
			t.Time = n
			t.Frame = cmd.Frame()
		}).InStage(Prelude),
	)
}
