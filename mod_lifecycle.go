package physarum

import (
	"time"
)

// LifetimeComponent removes its entity once TimeLeft or FramesLeft runs out,
// whichever is set. A removed physarum entity gets its GPU resources released.
type LifetimeComponent struct {
	TimeLeft   time.Duration
	FramesLeft int
}

type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(lifetimeSystem).
			InStage(PostUpdate),
	)
}

func lifetimeSystem(t *Time, cmd *Commands) {
	MakeQuery1[LifetimeComponent](cmd).Map(func(eid EntityId, lt *LifetimeComponent) bool {
		expired := false
		if lt.FramesLeft > 0 {
			lt.FramesLeft--
			expired = lt.FramesLeft == 0
		}
		if lt.TimeLeft > 0 && t.Dt > 0 {
			lt.TimeLeft -= t.Dt
			expired = expired || lt.TimeLeft <= 0
		}
		if expired {
			cmd.Logger().Debugf("Lifecycle marking entity %v for removal", eid)
			cmd.RemoveEntity(eid)
		}
		return true
	})
}
