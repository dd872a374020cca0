package physarum

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/DenizBicer/Physarum/compute"
)

// MaterialComponent is what a renderer draws for an entity. The physarum
// behaviour points MainTexture at its trail.
type MaterialComponent struct {
	MainTexture compute.Texture
	Tint        mgl32.Vec4
	// Gain scales trail intensity before it is clamped for display.
	Gain float32
}

func DefaultMaterial() MaterialComponent {
	return MaterialComponent{
		Tint: mgl32.Vec4{1, 0.85, 0.4, 1},
		Gain: 4,
	}
}
