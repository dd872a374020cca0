package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DenizBicer/Physarum/compute"
)

func TestAlignedBytesPerRow(t *testing.T) {
	tests := []struct {
		width, bpp, want uint32
	}{
		{1, 4, 256},
		{64, 4, 256},
		{65, 4, 512},
		{256, 4, 1024},
		{100, 1, 256},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignedBytesPerRow(tt.width, tt.bpp), "width %d bpp %d", tt.width, tt.bpp)
	}
}

func TestUnpackR32Rows(t *testing.T) {
	const w, h = 3, 2
	bytesPerRow := alignedBytesPerRow(w, 4)
	data := make([]byte, bytesPerRow*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(y*10 + x)
			binary.LittleEndian.PutUint32(data[uint32(y)*bytesPerRow+uint32(x)*4:], math.Float32bits(v))
		}
		// padding must be skipped
		binary.LittleEndian.PutUint32(data[uint32(y)*bytesPerRow+w*4:], math.Float32bits(-1))
	}

	got := unpackR32Rows(data, w, h, bytesPerRow)
	assert.Equal(t, []float32{0, 1, 2, 10, 11, 12}, got)
}

func TestEncodePresentParams(t *testing.T) {
	buf := encodePresentParams(mgl32.Vec4{0.25, 0.5, 0.75, 1}, 4)
	require.Len(t, buf, presentParamsSize)

	read := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(0.25), read(0))
	assert.Equal(t, float32(0.5), read(4))
	assert.Equal(t, float32(0.75), read(8))
	assert.Equal(t, float32(1), read(12))
	assert.Equal(t, float32(4), read(16))
	assert.Equal(t, make([]byte, 12), buf[20:])
}

func TestShader_RejectsInvalidProgram(t *testing.T) {
	d := &Device{}
	_, err := d.NewShader(&compute.Program{Label: "broken", UniformSize: 7})
	assert.ErrorContains(t, err, "uniform size")
}

func TestReleasedResourcesRejectUse(t *testing.T) {
	b := &Buffer{count: 1, stride: 4, released: true}
	assert.ErrorIs(t, b.SetData(make([]byte, 4)), compute.ErrReleased)
	b.Release()

	tex := &Texture{width: 2, height: 2, released: true}
	tex.Release()

	d := &Device{}
	_, err := d.ReadTexture(&Texture{dev: d, released: true})
	assert.ErrorIs(t, err, compute.ErrReleased)
	_, err = d.ReadTexture(&Texture{dev: &Device{}})
	assert.ErrorIs(t, err, compute.ErrIncompatibleResource)
}

func TestShader_ReleasedRejectsCalls(t *testing.T) {
	s := &Shader{released: true}
	_, err := s.FindKernel("Init")
	assert.ErrorIs(t, err, compute.ErrReleased)
	assert.ErrorIs(t, s.SetFloat("decay", 1), compute.ErrReleased)
	assert.ErrorIs(t, s.Dispatch(0, 1, 1, 1), compute.ErrReleased)
	s.Release()
}

func TestDevice_ReleaseTwice(t *testing.T) {
	d := &Device{}
	d.Release()
	d.Release()
	assert.True(t, d.released)
}
