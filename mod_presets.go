package physarum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/DenizBicer/Physarum/compute"
	"github.com/DenizBicer/Physarum/stimuli"
)

// BehaviourPreset is the saved form of one physarum entity. The shader and
// the running GPU state are not part of it.
type BehaviourPreset struct {
	ID                   EntityId `json:"id"`
	Enabled              bool     `json:"enabled"`
	PercentageParticles  float32  `json:"percentage_particles"`
	Dimension            int      `json:"dimension"`
	StimuliActive        bool     `json:"stimuli_active"`
	Stimuli              []byte   `json:"stimuli_png,omitempty"`
	Decay                float32  `json:"decay"`
	WProj                float32  `json:"w_proj"`
	SensorAngleDegrees   float32  `json:"sensor_angle_degrees"`
	RotationAngleDegrees float32  `json:"rotation_angle_degrees"`
	SensorOffsetDistance float32  `json:"sensor_offset_distance"`
	StepSize             float32  `json:"step_size"`

	HasMaterial bool       `json:"has_material"`
	Tint        mgl32.Vec4 `json:"tint,omitempty"`
	Gain        float32    `json:"gain,omitempty"`
}

type PresetData struct {
	Behaviours []BehaviourPreset `json:"behaviours"`
}

// SavePreset writes every physarum behaviour in the world to filename as JSON.
func SavePreset(cmd *Commands, filename string) error {
	var preset PresetData
	var firstErr error
	MakeQuery1[PhysarumBehaviour](cmd).Map(func(eid EntityId, b *PhysarumBehaviour) bool {
		data := BehaviourPreset{
			ID:                   eid,
			Enabled:              b.Enabled,
			PercentageParticles:  b.PercentageParticles,
			Dimension:            b.Dimension,
			StimuliActive:        b.StimuliActive,
			Decay:                b.Decay,
			WProj:                b.WProj,
			SensorAngleDegrees:   b.SensorAngleDegrees,
			RotationAngleDegrees: b.RotationAngleDegrees,
			SensorOffsetDistance: b.SensorOffsetDistance,
			StepSize:             b.StepSize,
		}
		if b.Stimuli != nil {
			var buf bytes.Buffer
			if err := png.Encode(&buf, b.Stimuli.NRGBA()); err != nil {
				firstErr = fmt.Errorf("encoding stimuli of entity %v: %w", eid, err)
				return false
			}
			data.Stimuli = buf.Bytes()
		}
		if m := GetComponent[MaterialComponent](cmd, eid); m != nil {
			data.HasMaterial = true
			data.Tint = m.Tint
			data.Gain = m.Gain
		}
		preset.Behaviours = append(preset.Behaviours, data)
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	out, err := json.MarshalIndent(preset, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, out, 0644)
}

// LoadPreset adds one entity per saved behaviour, all driven by shader. The
// entities exist after the next command flush.
func LoadPreset(cmd *Commands, filename string, shader compute.Shader) ([]EntityId, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var preset PresetData
	if err := json.Unmarshal(raw, &preset); err != nil {
		return nil, fmt.Errorf("parsing preset %s: %w", filename, err)
	}

	// Decode everything first so a bad entry adds nothing.
	components := make([][]any, 0, len(preset.Behaviours))
	for _, data := range preset.Behaviours {
		b := PhysarumBehaviour{
			Enabled:              data.Enabled,
			PercentageParticles:  data.PercentageParticles,
			Dimension:            data.Dimension,
			Shader:               shader,
			StimuliActive:        data.StimuliActive,
			Decay:                data.Decay,
			WProj:                data.WProj,
			SensorAngleDegrees:   data.SensorAngleDegrees,
			RotationAngleDegrees: data.RotationAngleDegrees,
			SensorOffsetDistance: data.SensorOffsetDistance,
			StepSize:             data.StepSize,
		}
		if len(data.Stimuli) > 0 {
			img, err := png.Decode(bytes.NewReader(data.Stimuli))
			if err != nil {
				return nil, fmt.Errorf("decoding stimuli of saved entity %v: %w", data.ID, err)
			}
			b.Stimuli = stimuli.FromImage(img)
		}
		cs := []any{b}
		if data.HasMaterial {
			cs = append(cs, MaterialComponent{Tint: data.Tint, Gain: data.Gain})
		}
		components = append(components, cs)
	}

	entities := make([]EntityId, 0, len(components))
	for _, cs := range components {
		entities = append(entities, cmd.AddEntity(cs...))
	}
	return entities, nil
}
