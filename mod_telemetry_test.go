package physarum

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DenizBicer/Physarum/compute/computetest"
	"github.com/DenizBicer/Physarum/shaders"
	"github.com/DenizBicer/Physarum/telemetry"
)

type recordingSink struct {
	records []telemetry.FrameRecord
	err     error
}

func (s *recordingSink) Write(records ...telemetry.FrameRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func newTelemetryApp(t *testing.T, every int, sink RecordSink) (*App, *computetest.Device, *computetest.Shader) {
	t.Helper()
	device := computetest.NewDevice()
	app := NewAppBuilder().
		UseModule(
			LoggingModule{Logger: NewNopLogger()},
			PhysarumModule{Device: device, Seed: 7},
			TelemetryModule{Every: every, Threshold: 0.5, Sink: sink},
		).
		Build()
	return app, device, computetest.NewShader(shaders.PhysarumProgram())
}

func TestTelemetry_SamplesEveryN(t *testing.T) {
	sink := &recordingSink{}
	app, device, shader := newTelemetryApp(t, 2, sink)

	b := NewPhysarumBehaviour(shader)
	b.Dimension = 8
	eid := app.Commands().AddEntity(b)
	app.FlushCommands()

	app.Step() // frame 0: start, then sample
	trail := device.Textures[0]
	for i := range trail.Texels {
		if i%4 == 0 {
			trail.Texels[i] = 1
		}
	}
	app.Step() // frame 1: skipped
	app.Step() // frame 2: sampled

	require.Len(t, sink.records, 2)
	assert.Equal(t, 2, device.Reads)
	assert.Equal(t, uint64(0), sink.records[0].Frame)
	assert.Zero(t, sink.records[0].Mean)

	last := sink.records[1]
	assert.Equal(t, uint64(2), last.Frame)
	assert.Equal(t, 8, last.Dimension)
	assert.Equal(t, GroupSize, last.Particles)
	assert.InDelta(t, 0.25, last.Mean, 1e-9)
	assert.InDelta(t, 0.25, last.Coverage, 1e-9)
	assert.InDelta(t, 1, last.Max, 1e-9)

	state := Resource[TelemetryState](app)
	latest, ok := state.Latest(eid)
	require.True(t, ok)
	assert.Equal(t, last, latest)
	assert.Zero(t, state.Failures())
}

func TestTelemetry_ReadFailureIsCounted(t *testing.T) {
	sink := &recordingSink{}
	app, device, shader := newTelemetryApp(t, 1, sink)

	b := NewPhysarumBehaviour(shader)
	b.Dimension = 8
	app.Commands().AddEntity(b)
	app.FlushCommands()

	device.Fail("ReadTexture", errors.New("lost"))
	app.Step()
	app.Step()

	state := Resource[TelemetryState](app)
	assert.Equal(t, 1, state.Failures())
	assert.Len(t, sink.records, 1)
}

func TestTelemetry_SinkFailureIsCounted(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	app, _, shader := newTelemetryApp(t, 1, sink)

	b := NewPhysarumBehaviour(shader)
	b.Dimension = 8
	app.Commands().AddEntity(b)
	app.FlushCommands()
	app.Step()

	assert.Equal(t, 1, Resource[TelemetryState](app).Failures())
}

func TestTelemetry_ForgetsRemovedEntities(t *testing.T) {
	app, _, shader := newTelemetryApp(t, 1, nil)
	cmd := app.Commands()

	b := NewPhysarumBehaviour(shader)
	b.Dimension = 8
	eid := cmd.AddEntity(b)
	app.FlushCommands()
	app.Step()

	state := Resource[TelemetryState](app)
	_, ok := state.Latest(eid)
	require.True(t, ok)

	cmd.RemoveEntity(eid)
	app.FlushCommands()
	app.Step()

	_, ok = state.Latest(eid)
	assert.False(t, ok)
}

func TestTelemetry_DisabledWithoutInterval(t *testing.T) {
	app, _, _ := newTelemetryApp(t, 0, nil)
	assert.Nil(t, Resource[TelemetryState](app))
}

func TestTelemetry_CSVSink(t *testing.T) {
	var buf bytes.Buffer
	app, _, shader := newTelemetryApp(t, 1, telemetry.NewCSVWriter(&buf))

	b := NewPhysarumBehaviour(shader)
	b.Dimension = 8
	app.Commands().AddEntity(b)
	app.FlushCommands()
	app.Step()
	app.Step()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "frame,instance,"))
}
