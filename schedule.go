package physarum

import (
	"fmt"
	"slices"
)

type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	PreRender  = Stage{Name: "PreRender"}
	Render     = Stage{Name: "Render"}
	PostRender = Stage{Name: "PostRender"}
	Finale     = Stage{Name: "Finale"}
)

func defaultStages() []Stage {
	return []Stage{Prelude, PreUpdate, Update, PostUpdate, PreRender, Render, PostRender, Finale}
}

// phase selects when a system runs: once before the first frame, every frame,
// or once when the app shuts down.
type phase int

const (
	startup phase = iota
	execute
	shutdown
)

type systemScheduleBuilder struct {
	system systemFn
	stage  Stage
	phase  phase
}

// System schedules fn every frame in the Update stage. Its parameters must be
// pointers to resources or *Commands.
func System(fn systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{
		system: fn,
		stage:  Update,
		phase:  execute,
	}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.stage = s
	return sched
}

func (sched systemScheduleBuilder) OnStartup() systemScheduleBuilder {
	sched.phase = startup
	return sched
}

func (sched systemScheduleBuilder) OnShutdown() systemScheduleBuilder {
	sched.phase = shutdown
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageBefore, target: s}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageAfter, target: s}
}

func (app *App) stageIndex(name string) int {
	return slices.IndexFunc(app.stages, func(s Stage) bool { return s.Name == name })
}

func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	if app.stageIndex(stage.Name) != -1 {
		panic(fmt.Sprintf("Stage %v already exists", stage.Name))
	}
	idx := app.stageIndex(where.target.Name)
	if idx == -1 {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}
	if where.position == stageAfter {
		idx++
	}
	app.stages = slices.Insert(app.stages, idx, stage)
	app.systems[stage.Name] = map[phase][]systemFn{}
	return app
}

func (app *App) UseSystem(system systemScheduleBuilder) *App {
	systemsInStage, ok := app.systems[system.stage.Name]
	if !ok {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.stage.Name))
	}
	validateSystem(system.system)
	systemsInStage[system.phase] = append(systemsInStage[system.phase], system.system)
	return app
}
