package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/DenizBicer/Physarum/compute"
)

const presentParamsSize = 32

// Presenter draws an r32float texture to the window surface, scaled by gain
// and tinted.
type Presenter struct {
	dev      *Device
	config   *wgpu.SurfaceConfiguration
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.RenderPipeline
	params   *wgpu.Buffer

	// bind group for the last drawn texture
	boundTex *Texture
	group    *wgpu.BindGroup
}

// NewPresenter configures the device's surface. source is the present WGSL.
func NewPresenter(dev *Device, source string, width, height int) (*Presenter, error) {
	if dev.surface == nil {
		return nil, errors.New("gpu: presenter needs a device opened for a window")
	}

	caps := dev.surface.GetCapabilities(dev.adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return nil, errors.New("gpu: surface reports no formats")
	}
	p := &Presenter{
		dev: dev,
		config: &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      caps.Formats[0],
			Width:       uint32(max(width, 1)),
			Height:      uint32(max(height, 1)),
			PresentMode: wgpu.PresentModeFifo,
			AlphaMode:   caps.AlphaModes[0],
		},
	}
	dev.surface.Configure(dev.adapter, dev.device, p.config)

	module, err := dev.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Present",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("compiling present shader: %w", err)
	}
	defer module.Release()

	// r32float is not filterable, so the layout is spelled out.
	p.layout, err = dev.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Present BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: presentParamsSize,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	pipelineLayout, err := dev.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Present Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		p.Release()
		return nil, err
	}
	defer pipelineLayout.Release()

	p.pipeline, err = dev.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Present Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    p.config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.Release()
		return nil, err
	}

	p.params, err = dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Present Params",
		Size:  presentParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// Resize reconfigures the surface. Zero sizes (minimized windows) are ignored.
func (p *Presenter) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if p.config.Width == uint32(width) && p.config.Height == uint32(height) {
		return
	}
	p.config.Width = uint32(width)
	p.config.Height = uint32(height)
	p.dev.surface.Configure(p.dev.adapter, p.dev.device, p.config)
}

// Draw presents tex, or a cleared frame when tex is nil.
func (p *Presenter) Draw(tex compute.Texture, tint mgl32.Vec4, gain float32) error {
	var t *Texture
	if tex != nil {
		var ok bool
		if t, ok = tex.(*Texture); !ok || t.dev != p.dev {
			return compute.ErrIncompatibleResource
		}
		if t.released {
			return compute.ErrReleased
		}
	}

	if t != nil {
		if err := p.dev.queue.WriteBuffer(p.params, 0, encodePresentParams(tint, gain)); err != nil {
			return err
		}
		if err := p.bindTexture(t); err != nil {
			return err
		}
	}

	next, err := p.dev.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquiring surface texture: %w", err)
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := p.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	if t != nil {
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, p.group, nil)
		pass.Draw(3, 1, 0, 0)
	}
	if err := pass.End(); err != nil {
		return err
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmdBuf.Release()
	p.dev.queue.Submit(cmdBuf)
	p.dev.surface.Present()
	return nil
}

func (p *Presenter) bindTexture(t *Texture) error {
	if p.boundTex == t && p.group != nil {
		return nil
	}
	if p.group != nil {
		p.group.Release()
		p.group = nil
	}
	group, err := p.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Present BG",
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: t.view},
			{Binding: 1, Buffer: p.params, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	p.group = group
	p.boundTex = t
	return nil
}

func (p *Presenter) Release() {
	if p.group != nil {
		p.group.Release()
		p.group = nil
	}
	if p.params != nil {
		p.params.Release()
		p.params = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}

// encodePresentParams packs the PresentParams uniform of the present shader.
func encodePresentParams(tint mgl32.Vec4, gain float32) []byte {
	buf := make([]byte, presentParamsSize)
	for i, c := range tint {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(gain))
	return buf
}
