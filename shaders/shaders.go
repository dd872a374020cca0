package shaders

import (
	_ "embed"

	"github.com/DenizBicer/Physarum/compute"
)

//go:embed physarum.wgsl
var PhysarumWGSL string

//go:embed present.wgsl
var PresentWGSL string

// Kernel and resource names the physarum behaviour binds.
const (
	KernelInit          = "Init"
	KernelMoveParticles = "MoveParticles"
	KernelStepTrail     = "StepTrail"

	ParticleBuffer = "particleBuffer"
	TrailBuffer    = "TrailBuffer"
	Stimuli        = "Stimuli"
)

// PhysarumProgram describes PhysarumWGSL. Offsets follow the WGSL Params
// struct layout.
func PhysarumProgram() *compute.Program {
	return &compute.Program{
		Label:          "Physarum",
		Source:         PhysarumWGSL,
		Group:          0,
		UniformBinding: 0,
		UniformSize:    48,
		Uniforms: []compute.UniformField{
			{Name: "trailDimension", Offset: 0, Kind: compute.UniformVec2},
			{Name: "numberOfParticles", Offset: 8, Kind: compute.UniformUint},
			{Name: "stimuliActive", Offset: 12, Kind: compute.UniformBool},
			{Name: "sensorAngle", Offset: 16, Kind: compute.UniformFloat},
			{Name: "rotationAngle", Offset: 20, Kind: compute.UniformFloat},
			{Name: "sensorOffsetDistance", Offset: 24, Kind: compute.UniformFloat},
			{Name: "stepSize", Offset: 28, Kind: compute.UniformFloat},
			{Name: "decay", Offset: 32, Kind: compute.UniformFloat},
			{Name: "wProj", Offset: 36, Kind: compute.UniformFloat},
			{Name: "seed", Offset: 40, Kind: compute.UniformUint},
		},
		Resources: []compute.ResourceBinding{
			{Name: ParticleBuffer, Binding: 1, Kind: compute.StorageBuffer},
			{Name: TrailBuffer, Binding: 2, Kind: compute.StorageTexture},
			{Name: Stimuli, Binding: 3, Kind: compute.SampledTexture},
		},
		Kernels: []compute.Kernel{
			{Name: KernelInit, EntryPoint: "init_particles", Resources: []string{ParticleBuffer}},
			{Name: KernelMoveParticles, EntryPoint: "move_particles", Resources: []string{ParticleBuffer, TrailBuffer}},
			{Name: KernelStepTrail, EntryPoint: "step_trail", Resources: []string{TrailBuffer, Stimuli}},
		},
	}
}
