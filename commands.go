package physarum

// Commands is handed to systems. Entity and component changes are deferred
// until the end of the current stage.
type Commands struct {
	app *App
}

func (cmd *Commands) App() *App { return cmd.app }

func (cmd *Commands) Logger() Logger { return cmd.app.Logger() }

func (cmd *Commands) Frame() uint64 { return cmd.app.frame }

// Stop asks Run to return after the current frame.
func (cmd *Commands) Stop() {
	cmd.app.stopped = true
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

func (cmd *Commands) UseSystem(system systemFn) *Commands {
	cmd.app.UseSystem(System(system))
	return cmd
}

func (cmd *Commands) AddEntity(components ...any) EntityId {
	eid := cmd.app.ecs.nextEntityId()
	cmd.app.pendingAdditions = append(cmd.app.pendingAdditions, pendingAdd{
		eid:        eid,
		components: components,
	})
	return eid
}

func (cmd *Commands) AddComponents(entityId EntityId, components ...any) {
	cmd.app.pendingCompAdds = append(cmd.app.pendingCompAdds, pendingComponents{
		eid:        entityId,
		components: components,
	})
}

// RemoveComponents takes zero values (or nil pointers) of the component types to drop.
func (cmd *Commands) RemoveComponents(entityId EntityId, components ...any) {
	cmd.app.pendingCompRemovals = append(cmd.app.pendingCompRemovals, pendingComponents{
		eid:        entityId,
		components: components,
	})
}

func (cmd *Commands) RemoveEntity(entityId EntityId) {
	cmd.app.pendingRemovals = append(cmd.app.pendingRemovals, entityId)
}

func (cmd *Commands) HasEntity(entityId EntityId) bool {
	return cmd.app.ecs.hasEntity(entityId)
}
