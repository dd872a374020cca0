package physarum

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/DenizBicer/Physarum/compute"
	"github.com/DenizBicer/Physarum/shaders"
	"github.com/DenizBicer/Physarum/stimuli"
)

// PhysarumBehaviour drives the Init, MoveParticles and StepTrail kernels of
// Shader. Initial values are read once when the behaviour starts; run time
// parameters are uploaded every frame.
type PhysarumBehaviour struct {
	Enabled bool

	PercentageParticles float32 // 0..1 of trail texels
	Dimension           int
	Shader              compute.Shader
	StimuliActive       bool
	Stimuli             *stimuli.Image // optional, uploaded at its own size

	Decay                float32 // 0..1
	WProj                float32 // 0..1
	SensorAngleDegrees   float32
	RotationAngleDegrees float32
	SensorOffsetDistance float32 // 0..1
	StepSize             float32 // 0..1
}

func NewPhysarumBehaviour(shader compute.Shader) PhysarumBehaviour {
	return PhysarumBehaviour{
		Enabled:              true,
		PercentageParticles:  0.02,
		Dimension:            256,
		Shader:               shader,
		StimuliActive:        true,
		Decay:                0.002,
		WProj:                0.1,
		SensorAngleDegrees:   45,
		RotationAngleDegrees: 45,
		SensorOffsetDistance: 0.01,
		StepSize:             0.001,
	}
}

// Validate pulls values back into the ranges the kernels expect.
func (b *PhysarumBehaviour) Validate() {
	if b.Dimension < GroupSize {
		b.Dimension = GroupSize
	}
	b.PercentageParticles = clamp01(b.PercentageParticles)
	b.Decay = clamp01(b.Decay)
	b.WProj = clamp01(b.WProj)
	b.SensorOffsetDistance = clamp01(b.SensorOffsetDistance)
	b.StepSize = clamp01(b.StepSize)
}

func (b *PhysarumBehaviour) RuntimeParams() RuntimeParams {
	return RuntimeParams{
		SensorAngle:          b.SensorAngleDegrees * degToRad,
		RotationAngle:        b.RotationAngleDegrees * degToRad,
		SensorOffsetDistance: clamp01(b.SensorOffsetDistance),
		StepSize:             clamp01(b.StepSize),
		Decay:                clamp01(b.Decay),
		WProj:                clamp01(b.WProj),
	}
}

type PhysarumModule struct {
	Device compute.Device
	// Seed for particle placement. Zero derives one from each instance id.
	Seed uint32
}

func (m PhysarumModule) Install(app *App, cmd *Commands) {
	if m.Device == nil {
		panic("PhysarumModule requires a compute device")
	}
	cmd.AddResources(&PhysarumState{
		device:    m.Device,
		seed:      m.Seed,
		instances: make(map[EntityId]*physarumInstance),
		attempted: make(map[EntityId]bool),
		bound:     make(map[compute.Shader]*physarumInstance),
	})
	app.UseSystem(System(physarumStartSystem).InStage(PreUpdate))
	app.UseSystem(System(physarumUpdateSystem).InStage(Update))
	app.UseSystem(System(physarumTeardownSystem).InStage(PreRender))
	app.UseSystem(System(physarumShutdownSystem).OnShutdown())
}

// PhysarumState owns the GPU resources of every started behaviour.
type PhysarumState struct {
	device    compute.Device
	seed      uint32
	instances map[EntityId]*physarumInstance
	// attempted marks entities whose start already ran, successful or not.
	attempted map[EntityId]bool
	// bound is the instance whose resources and sizes a shader currently
	// holds. Behaviours may share one shader.
	bound map[compute.Shader]*physarumInstance
}

type PhysarumInfo struct {
	Entity    EntityId
	ID        uuid.UUID
	Particles int
	Dimension int
	Trail     compute.Texture
}

func (s *PhysarumState) Device() compute.Device { return s.device }

func (s *PhysarumState) Info(eid EntityId) (PhysarumInfo, bool) {
	inst, ok := s.instances[eid]
	if !ok {
		return PhysarumInfo{}, false
	}
	return inst.info(eid), true
}

// All lists running behaviours by entity id.
func (s *PhysarumState) All() []PhysarumInfo {
	res := make([]PhysarumInfo, 0, len(s.instances))
	for _, eid := range slices.Sorted(maps.Keys(s.instances)) {
		res = append(res, s.instances[eid].info(eid))
	}
	return res
}

type physarumInstance struct {
	id     uuid.UUID
	shader compute.Shader

	initHandle     compute.KernelID
	particleHandle compute.KernelID
	trailHandle    compute.KernelID

	numberOfParticles int
	dimension         int
	stimuliActive     bool

	particleBuffer compute.Buffer
	trail          compute.Texture
	stimuli        compute.Texture
}

func (inst *physarumInstance) info(eid EntityId) PhysarumInfo {
	return PhysarumInfo{
		Entity:    eid,
		ID:        inst.id,
		Particles: inst.numberOfParticles,
		Dimension: inst.dimension,
		Trail:     inst.trail,
	}
}

func (s *PhysarumState) seedFor(id uuid.UUID) uint32 {
	if s.seed != 0 {
		return s.seed
	}
	return binary.LittleEndian.Uint32(id[:4])
}

func physarumStartSystem(state *PhysarumState, cmd *Commands) {
	MakeQuery1[PhysarumBehaviour](cmd).Map(func(eid EntityId, b *PhysarumBehaviour) bool {
		if !b.Enabled {
			return true
		}
		// A replaced component with another shader or trail size starts over.
		if inst, ok := state.instances[eid]; ok && (inst.shader != b.Shader || inst.dimension != b.Dimension) {
			cmd.Logger().Infof("physarum entity %v: shader or dimension changed, restarting", eid)
			state.releaseInstance(cmd, eid)
			delete(state.attempted, eid)
		}
		if state.attempted[eid] {
			return true
		}
		state.attempted[eid] = true

		if b.Shader == nil {
			cmd.Logger().Errorf("physarum shader has to be assigned for PhysarumBehaviour to work (entity %v)", eid)
			b.Enabled = false
			return true
		}

		inst, err := state.start(b)
		if err != nil {
			cmd.Logger().Errorf("physarum entity %v: %v", eid, err)
			b.Enabled = false
			return true
		}
		state.instances[eid] = inst

		if mat := GetComponent[MaterialComponent](cmd, eid); mat != nil {
			mat.MainTexture = inst.trail
		} else {
			mat := DefaultMaterial()
			mat.MainTexture = inst.trail
			cmd.AddComponents(eid, mat)
		}

		cmd.Logger().Infof("physarum %s started on entity %v: %d particles on a %dx%d trail",
			inst.id, eid, inst.numberOfParticles, inst.dimension, inst.dimension)
		return true
	})
}

func (s *PhysarumState) start(b *PhysarumBehaviour) (*physarumInstance, error) {
	b.Validate()

	inst := &physarumInstance{
		id:        uuid.New(),
		shader:    b.Shader,
		dimension: b.Dimension,
	}
	steps := []func() error{
		inst.findKernels,
		func() error { return inst.initializeParticles(s.device, b, s.seedFor(inst.id)) },
		func() error { return inst.initializeTrail(s.device) },
		func() error { return inst.initializeStimuli(s.device, b) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			inst.release()
			delete(s.bound, b.Shader)
			return nil, err
		}
	}
	s.bound[b.Shader] = inst
	return inst, nil
}

func (inst *physarumInstance) findKernels() error {
	var err error
	if inst.initHandle, err = inst.shader.FindKernel(shaders.KernelInit); err != nil {
		return err
	}
	if inst.particleHandle, err = inst.shader.FindKernel(shaders.KernelMoveParticles); err != nil {
		return err
	}
	if inst.trailHandle, err = inst.shader.FindKernel(shaders.KernelStepTrail); err != nil {
		return err
	}
	return nil
}

func (inst *physarumInstance) initializeParticles(device compute.Device, b *PhysarumBehaviour, seed uint32) error {
	inst.numberOfParticles = ParticleCount(inst.dimension, b.PercentageParticles)

	buf, err := device.NewBuffer("particles-"+inst.id.String(), inst.numberOfParticles, ParticleStride)
	if err != nil {
		return fmt.Errorf("allocating particle buffer: %w", err)
	}
	inst.particleBuffer = buf
	if err := buf.SetData(EncodeParticles(make([]Particle, inst.numberOfParticles))); err != nil {
		return fmt.Errorf("clearing particle buffer: %w", err)
	}

	sh := inst.shader
	dim := float32(inst.dimension)
	if err := sh.SetInt("numberOfParticles", int32(inst.numberOfParticles)); err != nil {
		return err
	}
	if err := sh.SetVector("trailDimension", mgl32.Vec2{dim, dim}); err != nil {
		return err
	}
	if err := sh.SetInt("seed", int32(seed)); err != nil {
		return err
	}
	if err := sh.SetBuffer(inst.initHandle, shaders.ParticleBuffer, buf); err != nil {
		return err
	}
	if err := sh.Dispatch(inst.initHandle, compute.Workgroups(inst.numberOfParticles, GroupSize), 1, 1); err != nil {
		return fmt.Errorf("dispatching %s: %w", shaders.KernelInit, err)
	}
	return sh.SetBuffer(inst.particleHandle, shaders.ParticleBuffer, buf)
}

func (inst *physarumInstance) initializeTrail(device compute.Device) error {
	trail, err := device.NewRenderTexture(compute.RenderTextureDesc{
		Label:       "trail-" + inst.id.String(),
		Width:       inst.dimension,
		Height:      inst.dimension,
		RandomWrite: true,
	})
	if err != nil {
		return fmt.Errorf("allocating trail: %w", err)
	}
	inst.trail = trail

	if err := inst.shader.SetTexture(inst.particleHandle, shaders.TrailBuffer, trail); err != nil {
		return err
	}
	return inst.shader.SetTexture(inst.trailHandle, shaders.TrailBuffer, trail)
}

func (inst *physarumInstance) initializeStimuli(device compute.Device, b *PhysarumBehaviour) error {
	img := b.Stimuli
	if img == nil {
		img = stimuli.Blank(inst.dimension, inst.dimension)
	}
	tex, err := device.NewTexture("stimuli-"+inst.id.String(), img.Width, img.Height, img.Pix)
	if err != nil {
		return fmt.Errorf("uploading stimuli: %w", err)
	}
	inst.stimuli = tex
	inst.stimuliActive = b.StimuliActive

	if err := inst.shader.SetBool("stimuliActive", b.StimuliActive); err != nil {
		return err
	}
	return inst.shader.SetTexture(inst.trailHandle, shaders.Stimuli, tex)
}

func physarumUpdateSystem(state *PhysarumState, cmd *Commands) {
	MakeQuery1[PhysarumBehaviour](cmd).Map(func(eid EntityId, b *PhysarumBehaviour) bool {
		inst, ok := state.instances[eid]
		if !ok || !b.Enabled {
			return true
		}
		if state.bound[inst.shader] != inst {
			if err := inst.bind(); err != nil {
				delete(state.bound, inst.shader)
				cmd.Logger().Errorf("physarum entity %v: rebinding shared shader: %v", eid, err)
				b.Enabled = false
				return true
			}
			state.bound[inst.shader] = inst
		}
		if err := inst.update(b.RuntimeParams()); err != nil {
			cmd.Logger().Errorf("physarum entity %v: %v", eid, err)
			b.Enabled = false
		}
		return true
	})
}

// bind points the shader back at this instance's sizes and resources after
// another instance sharing it took over.
func (inst *physarumInstance) bind() error {
	sh := inst.shader
	dim := float32(inst.dimension)
	if err := sh.SetInt("numberOfParticles", int32(inst.numberOfParticles)); err != nil {
		return err
	}
	if err := sh.SetVector("trailDimension", mgl32.Vec2{dim, dim}); err != nil {
		return err
	}
	if err := sh.SetBool("stimuliActive", inst.stimuliActive); err != nil {
		return err
	}
	if err := sh.SetBuffer(inst.particleHandle, shaders.ParticleBuffer, inst.particleBuffer); err != nil {
		return err
	}
	if err := sh.SetTexture(inst.particleHandle, shaders.TrailBuffer, inst.trail); err != nil {
		return err
	}
	if err := sh.SetTexture(inst.trailHandle, shaders.TrailBuffer, inst.trail); err != nil {
		return err
	}
	return sh.SetTexture(inst.trailHandle, shaders.Stimuli, inst.stimuli)
}

func (inst *physarumInstance) update(p RuntimeParams) error {
	if err := inst.updateRuntimeParameters(p); err != nil {
		return err
	}
	if err := inst.shader.Dispatch(inst.particleHandle, compute.Workgroups(inst.numberOfParticles, GroupSize), 1, 1); err != nil {
		return fmt.Errorf("dispatching %s: %w", shaders.KernelMoveParticles, err)
	}
	groups := compute.Workgroups(inst.dimension, GroupSize)
	if err := inst.shader.Dispatch(inst.trailHandle, groups, groups, 1); err != nil {
		return fmt.Errorf("dispatching %s: %w", shaders.KernelStepTrail, err)
	}
	return nil
}

func (inst *physarumInstance) updateRuntimeParameters(p RuntimeParams) error {
	params := []struct {
		name  string
		value float32
	}{
		{"sensorAngle", p.SensorAngle},
		{"rotationAngle", p.RotationAngle},
		{"sensorOffsetDistance", p.SensorOffsetDistance},
		{"stepSize", p.StepSize},
		{"decay", p.Decay},
		{"wProj", p.WProj},
	}
	for _, param := range params {
		if err := inst.shader.SetFloat(param.name, param.value); err != nil {
			return err
		}
	}
	return nil
}

// release frees every resource the instance allocated. The shader belongs
// to whoever assigned it.
func (inst *physarumInstance) release() {
	if inst.particleBuffer != nil {
		inst.particleBuffer.Release()
		inst.particleBuffer = nil
	}
	if inst.trail != nil {
		inst.trail.Release()
		inst.trail = nil
	}
	if inst.stimuli != nil {
		inst.stimuli.Release()
		inst.stimuli = nil
	}
}

func physarumTeardownSystem(state *PhysarumState, cmd *Commands) {
	for _, eid := range slices.Sorted(maps.Keys(state.attempted)) {
		if GetComponent[PhysarumBehaviour](cmd, eid) != nil {
			continue
		}
		delete(state.attempted, eid)
		state.releaseInstance(cmd, eid)
	}
}

func physarumShutdownSystem(state *PhysarumState, cmd *Commands) {
	for _, eid := range slices.Sorted(maps.Keys(state.instances)) {
		state.releaseInstance(cmd, eid)
	}
	clear(state.attempted)
	clear(state.bound)
	cmd.Logger().Debugf("physarum state released")
}

// releaseInstance frees the entity's resources and unhooks its trail from
// the entity's material.
func (s *PhysarumState) releaseInstance(cmd *Commands, eid EntityId) {
	inst, ok := s.instances[eid]
	if !ok {
		return
	}
	if mat := GetComponent[MaterialComponent](cmd, eid); mat != nil && mat.MainTexture == inst.trail {
		mat.MainTexture = nil
	}
	if s.bound[inst.shader] == inst {
		delete(s.bound, inst.shader)
	}
	inst.release()
	delete(s.instances, eid)
	cmd.Logger().Infof("physarum %s on entity %v released", inst.id, eid)
}
