// Package gpu implements the compute contract on WebGPU.
package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"

	"github.com/DenizBicer/Physarum/compute"
)

var (
	_ compute.Device  = (*Device)(nil)
	_ compute.Shader  = (*Shader)(nil)
	_ compute.Buffer  = (*Buffer)(nil)
	_ compute.Texture = (*Texture)(nil)
)

// Device owns the WebGPU instance, adapter, device and queue. When opened for
// a window it also owns the window's surface.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	released bool
}

// Open requests a high performance adapter. With a nil window the device is
// headless.
func Open(win *Window) (*Device, error) {
	d := &Device{instance: wgpu.CreateInstance(nil)}

	opts := &wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance}
	if win != nil {
		d.surface = d.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win.glfw))
		opts.CompatibleSurface = d.surface
	}

	adapter, err := d.instance.RequestAdapter(opts)
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("requesting adapter: %w", err)
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "Physarum Device"})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("requesting device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()
	return d, nil
}

func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

// Buffer is a storage buffer usable by compute kernels.
type Buffer struct {
	dev      *Device
	buf      *wgpu.Buffer
	count    int
	stride   int
	released bool
}

func (b *Buffer) Count() int  { return b.count }
func (b *Buffer) Stride() int { return b.stride }

func (b *Buffer) SetData(data []byte) error {
	if b.released {
		return compute.ErrReleased
	}
	if len(data) != b.count*b.stride {
		return fmt.Errorf("buffer: got %d bytes, want %d", len(data), b.count*b.stride)
	}
	return b.dev.queue.WriteBuffer(b.buf, 0, data)
}

func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.buf.Release()
}

func (d *Device) NewBuffer(label string, count, stride int) (compute.Buffer, error) {
	if count <= 0 || stride <= 0 {
		return nil, fmt.Errorf("buffer %s: invalid size %d x %d", label, count, stride)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(count * stride),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{dev: d, buf: buf, count: count, stride: stride}, nil
}

// Texture is either an r32float render texture or an rgba8 sampled texture.
type Texture struct {
	dev      *Device
	tex      *wgpu.Texture
	view     *wgpu.TextureView
	width    int
	height   int
	format   wgpu.TextureFormat
	storage  bool
	released bool
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }

func (t *Texture) Release() {
	if t.released {
		return
	}
	t.released = true
	t.view.Release()
	t.tex.Release()
}

func (d *Device) newTexture(label string, width, height int, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture %s: invalid size %dx%d", label, width, height)
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &Texture{dev: d, tex: tex, view: view, width: width, height: height, format: format}, nil
}

func (d *Device) NewRenderTexture(desc compute.RenderTextureDesc) (compute.Texture, error) {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst
	if desc.RandomWrite {
		usage |= wgpu.TextureUsageStorageBinding
	}
	t, err := d.newTexture(desc.Label, desc.Width, desc.Height, wgpu.TextureFormatR32Float, usage)
	if err != nil {
		return nil, err
	}
	t.storage = desc.RandomWrite
	return t, nil
}

func (d *Device) NewTexture(label string, width, height int, rgba []byte) (compute.Texture, error) {
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("texture %s: got %d bytes, want %d", label, len(rgba), width*height*4)
	}
	t, err := d.newTexture(label, width, height, wgpu.TextureFormatRGBA8Unorm,
		wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst)
	if err != nil {
		return nil, err
	}
	err = d.queue.WriteTexture(
		t.tex.AsImageCopy(),
		rgba,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(width * 4),
			RowsPerImage: uint32(height),
		},
		&wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)
	if err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

var errMapFailed = errors.New("gpu: mapping readback buffer failed")

// ReadTexture blocks until the GPU has copied tex into a mappable buffer.
func (d *Device) ReadTexture(tex compute.Texture) ([]float32, error) {
	t, ok := tex.(*Texture)
	if !ok || t.dev != d {
		return nil, compute.ErrIncompatibleResource
	}
	if t.released {
		return nil, compute.ErrReleased
	}
	if t.format != wgpu.TextureFormatR32Float {
		return nil, fmt.Errorf("%w: readback needs an r32float texture", compute.ErrResourceKind)
	}

	w, h := uint32(t.width), uint32(t.height)
	bytesPerRow := alignedBytesPerRow(w, 4)
	size := uint64(bytesPerRow * h)
	readback, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Trail Readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, err
	}
	defer readback.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	encoder.CopyTextureToBuffer(
		t.tex.AsImageCopy(),
		&wgpu.ImageCopyBuffer{
			Buffer: readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: h,
			},
		},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	defer cmdBuf.Release()
	d.queue.Submit(cmdBuf)

	done := false
	var status wgpu.BufferMapAsyncStatus
	err = readback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	if err != nil {
		return nil, err
	}
	for !done {
		d.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("%w: status %v", errMapFailed, status)
	}
	defer readback.Unmap()

	return unpackR32Rows(readback.GetMappedRange(0, uint(size)), w, h, bytesPerRow), nil
}

// alignedBytesPerRow rounds a row up to the 256-byte copy alignment.
func alignedBytesPerRow(width, bytesPerTexel uint32) uint32 {
	return (width*bytesPerTexel + 255) &^ 255
}

// unpackR32Rows drops the row padding of a texture copy.
func unpackR32Rows(data []byte, w, h, bytesPerRow uint32) []float32 {
	out := make([]float32, w*h)
	for y := uint32(0); y < h; y++ {
		row := data[y*bytesPerRow:]
		for x := uint32(0); x < w; x++ {
			out[y*w+x] = math.Float32frombits(binary.LittleEndian.Uint32(row[x*4:]))
		}
	}
	return out
}
