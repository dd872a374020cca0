package config

import (
	"github.com/go-gl/mathgl/mgl32"

	physarum "github.com/DenizBicer/Physarum"
	"github.com/DenizBicer/Physarum/compute"
	"github.com/DenizBicer/Physarum/stimuli"
)

// Behaviour builds an enabled behaviour driving shader. The stimuli image,
// when configured, is loaded here.
func (p PhysarumConfig) Behaviour(shader compute.Shader) (physarum.PhysarumBehaviour, error) {
	b := physarum.NewPhysarumBehaviour(shader)
	b.PercentageParticles = p.PercentageParticles
	b.Dimension = p.Dimension
	b.StimuliActive = p.StimuliActive
	b.Decay = p.Decay
	b.WProj = p.WProj
	b.SensorAngleDegrees = p.SensorAngleDegrees
	b.RotationAngleDegrees = p.RotationAngleDegrees
	b.SensorOffsetDistance = p.SensorOffsetDistance
	b.StepSize = p.StepSize

	if p.StimuliPath != "" {
		img, err := stimuli.Load(p.StimuliPath)
		if err != nil {
			return b, err
		}
		if p.StimuliFit {
			img = img.Resized(p.Dimension, p.Dimension)
		}
		b.Stimuli = img
	}
	return b, nil
}

func (w WindowConfig) Material() physarum.MaterialComponent {
	mat := physarum.DefaultMaterial()
	mat.Tint = mgl32.Vec4(w.Tint)
	mat.Gain = w.Gain
	return mat
}
