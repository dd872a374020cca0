package main

import (
	physarum "github.com/DenizBicer/Physarum"
	"github.com/DenizBicer/Physarum/gpu"
)

// frameLimitModule stops the app after Frames frames. Zero means no limit.
type frameLimitModule struct {
	Frames int
}

func (m frameLimitModule) Install(app *physarum.App, cmd *physarum.Commands) {
	if m.Frames <= 0 {
		return
	}
	limit := uint64(m.Frames)
	app.UseSystem(
		physarum.System(func(cmd *physarum.Commands) {
			if cmd.Frame()+1 >= limit {
				cmd.Logger().Infof("Reached %d frames", limit)
				cmd.Stop()
			}
		}).InStage(physarum.Finale),
	)
}

// presetModule saves every behaviour to Save when the app shuts down.
type presetModule struct {
	Save string
}

func (m presetModule) Install(app *physarum.App, cmd *physarum.Commands) {
	if m.Save == "" {
		return
	}
	path := m.Save
	app.UseSystem(
		physarum.System(func(cmd *physarum.Commands) {
			if err := physarum.SavePreset(cmd, path); err != nil {
				cmd.Logger().Errorf("saving preset: %v", err)
				return
			}
			cmd.Logger().Infof("Preset saved to %s", path)
		}).InStage(physarum.Prelude).OnShutdown(),
	)
}

type windowState struct {
	window    *gpu.Window
	presenter *gpu.Presenter
}

// windowModule pumps window events and presents the first material that has
// a main texture.
type windowModule struct {
	Window    *gpu.Window
	Presenter *gpu.Presenter
}

func (m windowModule) Install(app *physarum.App, cmd *physarum.Commands) {
	cmd.AddResources(&windowState{window: m.Window, presenter: m.Presenter})
	app.UseSystem(physarum.System(pollWindowSystem).InStage(physarum.Prelude))
	app.UseSystem(physarum.System(presentSystem).InStage(physarum.Render))
}

func pollWindowSystem(ws *windowState, cmd *physarum.Commands) {
	ws.window.PollEvents()
	if ws.window.ShouldClose() || ws.window.EscapePressed() {
		cmd.Stop()
		return
	}
	ws.presenter.Resize(ws.window.FramebufferSize())
}

func presentSystem(ws *windowState, cmd *physarum.Commands) {
	var drawn bool
	physarum.MakeQuery1[physarum.MaterialComponent](cmd).Map(func(eid physarum.EntityId, mat *physarum.MaterialComponent) bool {
		if mat.MainTexture == nil {
			return true
		}
		if err := ws.presenter.Draw(mat.MainTexture, mat.Tint, mat.Gain); err != nil {
			cmd.Logger().Warnf("presenting entity %v: %v", eid, err)
		}
		drawn = true
		return false
	})
	if !drawn {
		if err := ws.presenter.Draw(nil, [4]float32{}, 0); err != nil {
			cmd.Logger().Warnf("presenting: %v", err)
		}
	}
}
