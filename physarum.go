package physarum

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GroupSize must match the workgroup size of the kernels.
const GroupSize = 8

// ParticleStride is the GPU size of a Particle: vec2<f32> + f32 padded to
// the struct's 8-byte alignment.
const ParticleStride = 16

const degToRad float32 = 0.0174533

// Particle is one agent. Position is in normalized trail space [0,1).
type Particle struct {
	Position mgl32.Vec2
	Angle    float32
}

// EncodeParticles lays particles out as the kernels read them.
func EncodeParticles(particles []Particle) []byte {
	buf := make([]byte, len(particles)*ParticleStride)
	for i, p := range particles {
		o := buf[i*ParticleStride:]
		binary.LittleEndian.PutUint32(o[0:], math.Float32bits(p.Position[0]))
		binary.LittleEndian.PutUint32(o[4:], math.Float32bits(p.Position[1]))
		binary.LittleEndian.PutUint32(o[8:], math.Float32bits(p.Angle))
	}
	return buf
}

// DecodeParticles is the inverse of EncodeParticles. Trailing bytes that do
// not fill a particle are ignored.
func DecodeParticles(data []byte) []Particle {
	res := make([]Particle, len(data)/ParticleStride)
	for i := range res {
		o := data[i*ParticleStride:]
		res[i] = Particle{
			Position: mgl32.Vec2{
				math.Float32frombits(binary.LittleEndian.Uint32(o[0:])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[4:])),
			},
			Angle: math.Float32frombits(binary.LittleEndian.Uint32(o[8:])),
		}
	}
	return res
}

// ParticleCount is the agent count for a square trail of the given
// dimension, never below one workgroup.
func ParticleCount(dimension int, percentage float32) int {
	n := int(float32(dimension*dimension) * percentage)
	if n < GroupSize {
		n = GroupSize
	}
	return n
}

// RuntimeParams are the six values uploaded every frame, angles in radians.
type RuntimeParams struct {
	SensorAngle          float32
	RotationAngle        float32
	SensorOffsetDistance float32
	StepSize             float32
	Decay                float32
	WProj                float32
}

func clamp01(v float32) float32 {
	return mgl32.Clamp(v, 0, 1)
}
