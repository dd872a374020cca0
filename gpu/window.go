package gpu

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window is a resizable glfw window without a client API, for a WebGPU
// surface. Create it on the main thread.
type Window struct {
	glfw *glfw.Window
}

func NewWindow(width, height int, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing glfw: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}
	return &Window{glfw: win}, nil
}

func (w *Window) ShouldClose() bool { return w.glfw.ShouldClose() }

func (w *Window) PollEvents() { glfw.PollEvents() }

// FramebufferSize is the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) { return w.glfw.GetFramebufferSize() }

// EscapePressed reports whether Escape is held.
func (w *Window) EscapePressed() bool {
	return w.glfw.GetKey(glfw.KeyEscape) == glfw.Press
}

func (w *Window) Destroy() {
	w.glfw.Destroy()
	glfw.Terminate()
}
