package physarum

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DenizBicer/Physarum/compute"
	"github.com/DenizBicer/Physarum/compute/computetest"
	"github.com/DenizBicer/Physarum/shaders"
	"github.com/DenizBicer/Physarum/stimuli"
)

type physarumFixture struct {
	app    *App
	cmd    *Commands
	device *computetest.Device
	shader *computetest.Shader
	errs   *bytes.Buffer
}

func newPhysarumFixture(t *testing.T, seed uint32) *physarumFixture {
	t.Helper()
	var out, errs bytes.Buffer
	device := computetest.NewDevice()
	app := NewAppBuilder().
		UseModule(
			LoggingModule{Logger: NewWriterLogger("test", true, &out, &errs)},
			PhysarumModule{Device: device, Seed: seed},
		).
		Build()
	return &physarumFixture{
		app:    app,
		cmd:    app.Commands(),
		device: device,
		shader: computetest.NewShader(shaders.PhysarumProgram()),
		errs:   &errs,
	}
}

func (f *physarumFixture) spawn(components ...any) EntityId {
	eid := f.cmd.AddEntity(components...)
	f.app.FlushCommands()
	return eid
}

func (f *physarumFixture) behaviour(eid EntityId) *PhysarumBehaviour {
	return GetComponent[PhysarumBehaviour](f.cmd, eid)
}

func TestPhysarumBehaviour_Defaults(t *testing.T) {
	b := NewPhysarumBehaviour(nil)

	want := PhysarumBehaviour{
		Enabled:              true,
		PercentageParticles:  0.02,
		Dimension:            256,
		StimuliActive:        true,
		Decay:                0.002,
		WProj:                0.1,
		SensorAngleDegrees:   45,
		RotationAngleDegrees: 45,
		SensorOffsetDistance: 0.01,
		StepSize:             0.001,
	}
	assert.Equal(t, want, b)
}

func TestPhysarumBehaviour_Validate(t *testing.T) {
	b := NewPhysarumBehaviour(nil)
	b.Dimension = 3
	b.PercentageParticles = 1.5
	b.Decay = -1
	b.StepSize = 2
	b.Validate()

	assert.Equal(t, GroupSize, b.Dimension)
	assert.Equal(t, float32(1), b.PercentageParticles)
	assert.Equal(t, float32(0), b.Decay)
	assert.Equal(t, float32(1), b.StepSize)
}

func TestPhysarumBehaviour_RuntimeParams(t *testing.T) {
	b := NewPhysarumBehaviour(nil)
	b.SensorAngleDegrees = 90
	b.RotationAngleDegrees = 30
	b.WProj = 3

	p := b.RuntimeParams()
	assert.InDelta(t, 1.5707970, p.SensorAngle, 1e-6)
	assert.InDelta(t, 0.523599, p.RotationAngle, 1e-6)
	assert.Equal(t, float32(1), p.WProj)
	assert.Equal(t, float32(0.002), p.Decay)
}

func TestPhysarumModule_RequiresDevice(t *testing.T) {
	assert.Panics(t, func() {
		NewAppBuilder().UseModule(PhysarumModule{}).Build()
	})
}

func TestPhysarum_MissingShaderDisables(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	eid := f.spawn(NewPhysarumBehaviour(nil))

	f.app.Step()
	f.app.Step()

	assert.False(t, f.behaviour(eid).Enabled)
	assert.Contains(t, f.errs.String(), "physarum shader has to be assigned for PhysarumBehaviour to work")
	assert.Empty(t, f.device.Buffers)
	assert.Empty(t, f.device.Textures)
	assert.Nil(t, GetComponent[MaterialComponent](f.cmd, eid))
}

func TestPhysarum_StartSequence(t *testing.T) {
	f := newPhysarumFixture(t, 1234)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 64
	b.PercentageParticles = 0.1
	eid := f.spawn(b)

	f.app.Step()

	want := []computetest.Call{
		{Op: "FindKernel", Name: shaders.KernelInit},
		{Op: "FindKernel", Name: shaders.KernelMoveParticles},
		{Op: "FindKernel", Name: shaders.KernelStepTrail},
		{Op: "SetInt", Name: "numberOfParticles", Value: int32(409)},
		{Op: "SetVector", Name: "trailDimension", Value: mgl32.Vec2{64, 64}},
		{Op: "SetInt", Name: "seed", Value: int32(1234)},
		{Op: "SetBuffer", Kernel: shaders.KernelInit, Name: shaders.ParticleBuffer},
		{Op: "Dispatch", Kernel: shaders.KernelInit, Groups: [3]uint32{52, 1, 1}},
		{Op: "SetBuffer", Kernel: shaders.KernelMoveParticles, Name: shaders.ParticleBuffer},
		{Op: "SetTexture", Kernel: shaders.KernelMoveParticles, Name: shaders.TrailBuffer},
		{Op: "SetTexture", Kernel: shaders.KernelStepTrail, Name: shaders.TrailBuffer},
		{Op: "SetBool", Name: "stimuliActive", Value: true},
		{Op: "SetTexture", Kernel: shaders.KernelStepTrail, Name: shaders.Stimuli},
	}
	// Update of the first frame follows the start.
	require.GreaterOrEqual(t, len(f.shader.Calls), len(want))
	if diff := cmp.Diff(want, f.shader.Calls[:len(want)]); diff != "" {
		t.Errorf("start calls mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, f.device.Buffers, 1)
	buf := f.device.Buffers[0]
	assert.Equal(t, 409, buf.Count())
	assert.Equal(t, ParticleStride, buf.Stride())
	assert.Equal(t, make([]byte, 409*ParticleStride), buf.Data)

	require.Len(t, f.device.Textures, 2)
	trail, stim := f.device.Textures[0], f.device.Textures[1]
	assert.True(t, trail.RandomWrite)
	assert.Equal(t, 64, trail.Width())
	assert.Equal(t, 64, trail.Height())
	assert.Equal(t, 64, stim.Width())
	assert.Equal(t, make([]byte, 64*64*4), stim.RGBA)

	assert.Same(t, buf, f.shader.Bound(shaders.KernelMoveParticles, shaders.ParticleBuffer))
	assert.Same(t, trail, f.shader.Bound(shaders.KernelStepTrail, shaders.TrailBuffer))
	assert.Same(t, stim, f.shader.Bound(shaders.KernelStepTrail, shaders.Stimuli))

	mat := GetComponent[MaterialComponent](f.cmd, eid)
	require.NotNil(t, mat)
	assert.Same(t, trail, mat.MainTexture)
	assert.Equal(t, DefaultMaterial().Tint, mat.Tint)

	info, ok := Resource[PhysarumState](f.app).Info(eid)
	require.True(t, ok)
	assert.Equal(t, 409, info.Particles)
	assert.Equal(t, 64, info.Dimension)
}

func TestPhysarum_UpdateEveryFrame(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 20
	b.PercentageParticles = 0.5
	eid := f.spawn(b)

	f.app.Step()
	f.shader.Reset()

	f.behaviour(eid).SensorAngleDegrees = 90
	f.app.Step()

	ignoreValue := cmpopts.IgnoreFields(computetest.Call{}, "Value")
	want := []computetest.Call{
		{Op: "SetFloat", Name: "sensorAngle"},
		{Op: "SetFloat", Name: "rotationAngle"},
		{Op: "SetFloat", Name: "sensorOffsetDistance"},
		{Op: "SetFloat", Name: "stepSize"},
		{Op: "SetFloat", Name: "decay"},
		{Op: "SetFloat", Name: "wProj"},
		{Op: "Dispatch", Kernel: shaders.KernelMoveParticles, Groups: [3]uint32{25, 1, 1}},
		{Op: "Dispatch", Kernel: shaders.KernelStepTrail, Groups: [3]uint32{3, 3, 1}},
	}
	if diff := cmp.Diff(want, f.shader.Calls, ignoreValue); diff != "" {
		t.Errorf("update calls mismatch (-want +got):\n%s", diff)
	}

	v, err := f.shader.Uniforms.Float("sensorAngle")
	require.NoError(t, err)
	assert.InDelta(t, 1.570797, v, 1e-6)
	v, err = f.shader.Uniforms.Float("decay")
	require.NoError(t, err)
	assert.Equal(t, float32(0.002), v)
}

func TestPhysarum_SmallTrailGetsOneWorkgroupOfParticles(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 2
	b.PercentageParticles = 0
	f.spawn(b)

	f.app.Step()

	require.Len(t, f.device.Buffers, 1)
	assert.Equal(t, GroupSize, f.device.Buffers[0].Count())
	assert.Equal(t, GroupSize, f.device.Textures[0].Width())
	for _, d := range f.shader.Dispatches() {
		assert.NotZero(t, d.Groups[0])
	}
}

func TestPhysarum_StimuliImage(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	img := stimuli.Blank(10, 6)
	img.Pix[0] = 255
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 16
	b.Stimuli = img
	b.StimuliActive = false
	f.spawn(b)

	f.app.Step()

	stim := f.device.Textures[1]
	assert.Equal(t, 10, stim.Width())
	assert.Equal(t, 6, stim.Height())
	assert.Equal(t, img.Pix, stim.RGBA)

	active, err := f.shader.Uniforms.Int("stimuliActive")
	require.NoError(t, err)
	assert.Equal(t, int32(0), active)
}

func TestPhysarum_KeepsExistingMaterial(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 8
	eid := f.spawn(b, MaterialComponent{Tint: mgl32.Vec4{0, 1, 0, 1}, Gain: 2})

	f.app.Step()

	mat := GetComponent[MaterialComponent](f.cmd, eid)
	require.NotNil(t, mat)
	assert.Equal(t, mgl32.Vec4{0, 1, 0, 1}, mat.Tint)
	assert.Equal(t, float32(2), mat.Gain)
	assert.Same(t, f.device.Textures[0], mat.MainTexture)
}

func TestPhysarum_StartFailureDisablesAndReleases(t *testing.T) {
	tests := []struct {
		name        string
		fail        func(f *physarumFixture, err error)
		wantBuffers int
	}{
		{"kernel lookup", func(f *physarumFixture, err error) { f.shader.Fail("FindKernel", err) }, 0},
		{"particle buffer", func(f *physarumFixture, err error) { f.device.Fail("NewBuffer", err) }, 0},
		{"init dispatch", func(f *physarumFixture, err error) { f.shader.Fail("Dispatch", err) }, 1},
		{"trail", func(f *physarumFixture, err error) { f.device.Fail("NewRenderTexture", err) }, 1},
		{"stimuli", func(f *physarumFixture, err error) { f.device.Fail("NewTexture", err) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPhysarumFixture(t, 1)
			tt.fail(f, errors.New("boom"))
			b := NewPhysarumBehaviour(f.shader)
			b.Dimension = 8
			eid := f.spawn(b)

			f.app.Step()
			f.app.Step()

			assert.False(t, f.behaviour(eid).Enabled)
			assert.Contains(t, f.errs.String(), "boom")
			require.Len(t, f.device.Buffers, tt.wantBuffers)
			for _, buf := range f.device.Buffers {
				assert.Equal(t, 1, buf.Released)
			}
			for _, tex := range f.device.Textures {
				assert.Equal(t, 1, tex.Released)
			}
			assert.Nil(t, GetComponent[MaterialComponent](f.cmd, eid))
			assert.Empty(t, Resource[PhysarumState](f.app).All())
		})
	}
}

func TestPhysarum_UpdateFailureDisables(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 8
	eid := f.spawn(b)
	f.app.Step()

	f.shader.Fail("SetFloat", compute.ErrUnknownUniform)
	f.app.Step()
	assert.False(t, f.behaviour(eid).Enabled)

	f.shader.Reset()
	f.app.Step()
	assert.Empty(t, f.shader.Calls)
}

func TestPhysarum_ReenableDoesNotRestart(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 8
	eid := f.spawn(b)
	f.app.Step()

	f.behaviour(eid).Enabled = false
	f.shader.Reset()
	f.app.Step()
	assert.Empty(t, f.shader.Calls)

	f.behaviour(eid).Enabled = true
	f.app.Step()
	assert.Len(t, f.device.Buffers, 1)
	assert.Len(t, f.shader.Dispatches(), 2)
}

func TestPhysarum_DisabledUntilEnabled(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 8
	b.Enabled = false
	eid := f.spawn(b)

	f.app.Step()
	assert.Empty(t, f.device.Buffers)

	f.behaviour(eid).Enabled = true
	f.app.Step()
	assert.Len(t, f.device.Buffers, 1)
}

func TestPhysarum_Teardown(t *testing.T) {
	tests := []struct {
		name   string
		remove func(f *physarumFixture, eid EntityId)
	}{
		{"entity removed", func(f *physarumFixture, eid EntityId) { f.cmd.RemoveEntity(eid) }},
		{"component removed", func(f *physarumFixture, eid EntityId) { f.cmd.RemoveComponents(eid, PhysarumBehaviour{}) }},
		{"lifetime expired", func(f *physarumFixture, eid EntityId) { f.cmd.AddComponents(eid, LifetimeComponent{FramesLeft: 1}) }},
		{"shutdown", func(f *physarumFixture, eid EntityId) { f.app.Shutdown() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPhysarumFixture(t, 1)
			TimeModule{}.Install(f.app, f.cmd)
			LifecycleModule{}.Install(f.app, f.cmd)

			b := NewPhysarumBehaviour(f.shader)
			b.Dimension = 8
			eid := f.spawn(b)
			f.app.Step()

			tt.remove(f, eid)
			f.app.FlushCommands()
			f.app.Step()
			f.app.Step()
			f.app.Shutdown()

			require.Len(t, f.device.Buffers, 1)
			assert.Equal(t, 1, f.device.Buffers[0].Released)
			for _, tex := range f.device.Textures {
				assert.Equal(t, 1, tex.Released, tex.Label)
			}
			assert.Zero(t, f.shader.Released, "the shader is owned by the caller")
			assert.Empty(t, Resource[PhysarumState](f.app).All())

			if mat := GetComponent[MaterialComponent](f.cmd, eid); mat != nil {
				assert.Nil(t, mat.MainTexture)
			}
		})
	}
}

func TestPhysarum_IndependentInstances(t *testing.T) {
	f := newPhysarumFixture(t, 0)
	a := NewPhysarumBehaviour(f.shader)
	a.Dimension = 8
	other := computetest.NewShader(shaders.PhysarumProgram())
	b := NewPhysarumBehaviour(other)
	b.Dimension = 16
	ea := f.spawn(a)
	eb := f.spawn(b)

	f.app.Step()

	all := Resource[PhysarumState](f.app).All()
	require.Len(t, all, 2)
	assert.Equal(t, ea, all[0].Entity)
	assert.Equal(t, eb, all[1].Entity)
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.NotSame(t, all[0].Trail, all[1].Trail)
	assert.Equal(t, 16, all[1].Dimension)
	assert.Len(t, other.Dispatches(), 3)
}

type dispatchState struct {
	kernel    string
	groups    [3]uint32
	particles int32
	dimension mgl32.Vec2
	buffer    any
	trail     any
	stimuli   any
}

func TestPhysarum_SharedShaderRebindsPerInstance(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	var seen []dispatchState
	f.shader.OnDispatch = func(c computetest.Call) {
		if c.Kernel == shaders.KernelInit {
			return
		}
		n, err := f.shader.Uniforms.Int("numberOfParticles")
		require.NoError(t, err)
		dim, err := f.shader.Uniforms.Vector("trailDimension")
		require.NoError(t, err)
		seen = append(seen, dispatchState{
			kernel:    c.Kernel,
			groups:    c.Groups,
			particles: n,
			dimension: dim,
			buffer:    f.shader.Bound(shaders.KernelMoveParticles, shaders.ParticleBuffer),
			trail:     f.shader.Bound(c.Kernel, shaders.TrailBuffer),
			stimuli:   f.shader.Bound(shaders.KernelStepTrail, shaders.Stimuli),
		})
	}

	a := NewPhysarumBehaviour(f.shader)
	a.Dimension = 64
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 128
	b.StimuliActive = false
	f.spawn(a)
	f.spawn(b)

	f.app.Step()
	f.app.Step()
	require.Empty(t, f.errs.String())

	// creation order: A trail, A stimuli, B trail, B stimuli
	require.Len(t, f.device.Buffers, 2)
	require.Len(t, f.device.Textures, 4)
	type expect struct {
		particles int32
		dimension float32
		move      [3]uint32
		step      [3]uint32
		buffer    any
		trail     any
		stimuli   any
	}
	instA := expect{81, 64, [3]uint32{11, 1, 1}, [3]uint32{8, 8, 1},
		f.device.Buffers[0], f.device.Textures[0], f.device.Textures[1]}
	instB := expect{327, 128, [3]uint32{41, 1, 1}, [3]uint32{16, 16, 1},
		f.device.Buffers[1], f.device.Textures[2], f.device.Textures[3]}

	frame := []expect{instA, instA, instB, instB}
	require.Len(t, seen, 2*len(frame))
	for i, got := range seen {
		want := frame[i%len(frame)]
		groups, kernel := want.move, shaders.KernelMoveParticles
		if i%2 == 1 {
			groups, kernel = want.step, shaders.KernelStepTrail
		}
		assert.Equal(t, kernel, got.kernel, "dispatch %d", i)
		assert.Equal(t, groups, got.groups, "dispatch %d", i)
		assert.Equal(t, want.particles, got.particles, "dispatch %d", i)
		assert.Equal(t, mgl32.Vec2{want.dimension, want.dimension}, got.dimension, "dispatch %d", i)
		assert.Same(t, want.buffer, got.buffer, "dispatch %d", i)
		assert.Same(t, want.trail, got.trail, "dispatch %d", i)
		assert.Same(t, want.stimuli, got.stimuli, "dispatch %d", i)
	}

	var active []bool
	for _, c := range f.shader.Calls {
		if c.Op == "SetBool" && c.Name == "stimuliActive" {
			active = append(active, c.Value.(bool))
		}
	}
	// start A, start B, then A and B take the shader back every frame
	assert.Equal(t, []bool{true, false, true, false, true, false}, active)
}

func TestPhysarum_SoleShaderOwnerIsNotRebound(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 16
	f.spawn(b)
	f.app.Step()

	f.shader.Reset()
	f.app.Step()
	assert.NotContains(t, f.shader.Ops(), "SetBuffer")
	assert.NotContains(t, f.shader.Ops(), "SetTexture")
}

func TestPhysarum_ReplacedBehaviourRestarts(t *testing.T) {
	f := newPhysarumFixture(t, 1)
	b := NewPhysarumBehaviour(f.shader)
	b.Dimension = 16
	eid := f.spawn(b)
	f.app.Step()
	state := Resource[PhysarumState](f.app)
	before, ok := state.Info(eid)
	require.True(t, ok)

	// runtime-only change keeps the running instance
	tuned := *f.behaviour(eid)
	tuned.Decay = 0.5
	f.cmd.AddComponents(eid, tuned)
	f.app.FlushCommands()
	f.app.Step()
	same, ok := state.Info(eid)
	require.True(t, ok)
	assert.Equal(t, before.ID, same.ID)
	assert.Len(t, f.device.Buffers, 1)

	other := computetest.NewShader(shaders.PhysarumProgram())
	replaced := NewPhysarumBehaviour(other)
	replaced.Dimension = 32
	f.cmd.AddComponents(eid, replaced)
	f.app.FlushCommands()
	f.app.Step()

	after, ok := state.Info(eid)
	require.True(t, ok)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, 32, after.Dimension)
	assert.Equal(t, 1, f.device.Buffers[0].Released)
	for _, tex := range f.device.Textures[:2] {
		assert.Equal(t, 1, tex.Released, tex.Label)
	}
	assert.Zero(t, f.shader.Released)
	assert.Len(t, other.Dispatches(), 3, "Init, MoveParticles, StepTrail")

	mat := GetComponent[MaterialComponent](f.cmd, eid)
	require.NotNil(t, mat)
	assert.Same(t, after.Trail, mat.MainTexture)
}
