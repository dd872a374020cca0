package physarum

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

type App struct {
	stages    []Stage
	systems   map[string]map[phase][]systemFn
	resources map[reflect.Type]any
	ecs       *Ecs

	started  bool
	stopped  bool
	shutDown bool
	frame    uint64

	// Command Buffering
	pendingAdditions    []pendingAdd
	pendingRemovals     []EntityId
	pendingCompAdds     []pendingComponents
	pendingCompRemovals []pendingComponents
}

type pendingAdd struct {
	eid        EntityId
	components []any
}

type pendingComponents struct {
	eid        EntityId
	components []any
}

func newApp() *App {
	app := &App{
		stages:    defaultStages(),
		systems:   make(map[string]map[phase][]systemFn),
		resources: make(map[reflect.Type]any),
		ecs:       NewEcs(),
	}
	for _, stage := range app.stages {
		app.systems[stage.Name] = map[phase][]systemFn{}
	}
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Frame is the number of completed frames.
func (app *App) Frame() uint64 { return app.frame }

// Stopped reports whether Commands.Stop was called.
func (app *App) Stopped() bool { return app.stopped }

// Step runs a single frame. Startup systems run before the first one.
func (app *App) Step() {
	if app.shutDown {
		return
	}
	if !app.started {
		app.started = true
		app.callSystems(startup)
	}
	app.callSystems(execute)
	app.frame++
}

// Run steps until a system calls Commands.Stop or ctx is done, then shuts
// the app down.
func (app *App) Run(ctx context.Context) error {
	defer app.Shutdown()

	app.Logger().Infof("Running %d stages", len(app.stages))
	for !app.stopped {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		app.Step()
	}
	return nil
}

// Shutdown runs shutdown systems once. Further calls and steps are no-ops.
func (app *App) Shutdown() {
	if app.shutDown {
		return
	}
	app.callSystems(shutdown)
	app.shutDown = true
}

func (app *App) callSystems(ph phase) {
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name][ph] {
			app.callSystem(system)
		}
		app.FlushCommands()
	}
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType == nil || resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resource %v must be a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}

		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource returns the resource of type T, or nil.
func Resource[T any](app *App) *T {
	if r, ok := app.resources[reflect.TypeFor[T]()]; ok {
		return r.(*T)
	}
	return nil
}

var typeOfCommands = reflect.TypeOf(Commands{})

func validateSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	if systemType == nil || systemType.Kind() != reflect.Func {
		panic(fmt.Sprintf("system must be a func, got %v", systemType))
	}
	for i := 0; i < systemType.NumIn(); i++ {
		if systemType.In(i).Kind() != reflect.Pointer {
			panic(fmt.Sprintf("system %v: argument %d must be a pointer", systemType, i))
		}
	}
}

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())

	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlyingType]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(systemType),
				fmt.Sprint(argType),
			)
			app.Logger().Errorf("%s", msg)
			panic(msg)
		}
	}
	systemValue.Call(args)
}

func (app *App) FlushCommands() {
	if len(app.pendingAdditions) == 0 && len(app.pendingRemovals) == 0 &&
		len(app.pendingCompAdds) == 0 && len(app.pendingCompRemovals) == 0 {
		return
	}

	// Removals first so nothing is added to a dead entity.
	for _, eid := range app.pendingRemovals {
		app.ecs.removeEntity(eid)
	}
	app.pendingRemovals = app.pendingRemovals[:0]

	for _, add := range app.pendingAdditions {
		app.ecs.insertEntity(add.eid, add.components...)
	}
	app.pendingAdditions = app.pendingAdditions[:0]

	for _, add := range app.pendingCompAdds {
		app.ecs.addComponents(add.eid, add.components...)
	}
	app.pendingCompAdds = app.pendingCompAdds[:0]

	for _, rm := range app.pendingCompRemovals {
		app.ecs.removeComponents(rm.eid, rm.components...)
	}
	app.pendingCompRemovals = app.pendingCompRemovals[:0]
}
