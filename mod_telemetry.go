package physarum

import (
	"github.com/DenizBicer/Physarum/telemetry"
)

// RecordSink receives telemetry rows. *telemetry.CSVWriter is one.
type RecordSink interface {
	Write(records ...telemetry.FrameRecord) error
}

// TelemetryModule samples the trail of every running physarum behaviour
// every Every frames. It needs PhysarumModule.
type TelemetryModule struct {
	Every     int
	Threshold float32
	// Sink is optional; samples are always kept in TelemetryState.
	Sink RecordSink
}

// TelemetryState holds the latest sample per entity.
type TelemetryState struct {
	every     int
	threshold float32
	sink      RecordSink
	latest    map[EntityId]telemetry.FrameRecord
	failures  int
}

func (mod TelemetryModule) Install(app *App, cmd *Commands) {
	if mod.Every <= 0 {
		return
	}
	cmd.AddResources(&TelemetryState{
		every:     mod.Every,
		threshold: mod.Threshold,
		sink:      mod.Sink,
		latest:    make(map[EntityId]telemetry.FrameRecord),
	})
	app.UseSystem(System(telemetrySystem).InStage(PostRender))
}

func (s *TelemetryState) Latest(eid EntityId) (telemetry.FrameRecord, bool) {
	r, ok := s.latest[eid]
	return r, ok
}

// Failures counts readbacks and sink writes that returned an error.
func (s *TelemetryState) Failures() int { return s.failures }

func telemetrySystem(state *TelemetryState, physarum *PhysarumState, cmd *Commands) {
	frame := cmd.Frame()
	if frame%uint64(state.every) != 0 {
		return
	}

	for eid := range state.latest {
		if _, ok := physarum.Info(eid); !ok {
			delete(state.latest, eid)
		}
	}

	var records []telemetry.FrameRecord
	for _, info := range physarum.All() {
		texels, err := physarum.Device().ReadTexture(info.Trail)
		if err != nil {
			state.failures++
			cmd.Logger().Warnf("telemetry: reading trail of entity %v: %v", info.Entity, err)
			continue
		}
		stats := telemetry.ComputeTrailStats(texels, state.threshold)
		record := telemetry.NewFrameRecord(frame, info.ID.String(), info.Particles, info.Dimension, stats)
		state.latest[info.Entity] = record
		records = append(records, record)

		cmd.Logger().Debugf("telemetry: entity %v frame %d mean %.4f max %.4f coverage %.3f",
			info.Entity, frame, stats.Mean, stats.Max, stats.Coverage)
	}

	if state.sink == nil || len(records) == 0 {
		return
	}
	if err := state.sink.Write(records...); err != nil {
		state.failures++
		cmd.Logger().Warnf("telemetry: %v", err)
	}
}
