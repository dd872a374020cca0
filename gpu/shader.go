package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/DenizBicer/Physarum/compute"
)

// Shader runs the kernels of a compute.Program. Every kernel gets its own
// pipeline with an automatic layout, so its bind group only holds the
// uniform block and the resources the kernel lists.
type Shader struct {
	dev     *Device
	program *compute.Program

	module     *wgpu.ShaderModule
	pipelines  []*wgpu.ComputePipeline
	uniforms   *compute.UniformBlock
	uniformBuf *wgpu.Buffer

	bound  []map[string]any
	groups []*wgpu.BindGroup

	released bool
}

func (d *Device) NewShader(p *compute.Program) (*Shader, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Shader{
		dev:      d,
		program:  p,
		uniforms: compute.NewUniformBlock(p),
		bound:    make([]map[string]any, len(p.Kernels)),
		groups:   make([]*wgpu.BindGroup, len(p.Kernels)),
	}
	for i := range s.bound {
		s.bound[i] = map[string]any{}
	}

	var err error
	s.module, err = d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          p.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", p.Label, err)
	}

	for _, k := range p.Kernels {
		pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: p.Label + " " + k.Name,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     s.module,
				EntryPoint: k.EntryPoint,
			},
		})
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("creating pipeline %s: %w", k.Name, err)
		}
		s.pipelines = append(s.pipelines, pipeline)
	}

	s.uniformBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: p.Label + " Params",
		Size:  uint64(p.UniformSize),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *Shader) FindKernel(name string) (compute.KernelID, error) {
	if s.released {
		return -1, compute.ErrReleased
	}
	return s.program.Kernel(name)
}

func (s *Shader) SetInt(name string, v int32) error {
	if s.released {
		return compute.ErrReleased
	}
	return s.uniforms.SetInt(name, v)
}

func (s *Shader) SetFloat(name string, v float32) error {
	if s.released {
		return compute.ErrReleased
	}
	return s.uniforms.SetFloat(name, v)
}

func (s *Shader) SetBool(name string, v bool) error {
	if s.released {
		return compute.ErrReleased
	}
	return s.uniforms.SetBool(name, v)
}

func (s *Shader) SetVector(name string, v mgl32.Vec2) error {
	if s.released {
		return compute.ErrReleased
	}
	return s.uniforms.SetVector(name, v)
}

func (s *Shader) SetBuffer(kernel compute.KernelID, name string, buf compute.Buffer) error {
	r, err := s.resource(kernel, name)
	if err != nil {
		return err
	}
	if r.Kind != compute.StorageBuffer {
		return fmt.Errorf("%w: %q is a %s", compute.ErrResourceKind, name, r.Kind)
	}
	b, ok := buf.(*Buffer)
	if !ok || b.dev != s.dev {
		return compute.ErrIncompatibleResource
	}
	if b.released {
		return compute.ErrReleased
	}
	s.bind(kernel, name, b)
	return nil
}

func (s *Shader) SetTexture(kernel compute.KernelID, name string, tex compute.Texture) error {
	r, err := s.resource(kernel, name)
	if err != nil {
		return err
	}
	if r.Kind == compute.StorageBuffer {
		return fmt.Errorf("%w: %q is a %s", compute.ErrResourceKind, name, r.Kind)
	}
	t, ok := tex.(*Texture)
	if !ok || t.dev != s.dev {
		return compute.ErrIncompatibleResource
	}
	if t.released {
		return compute.ErrReleased
	}
	if r.Kind == compute.StorageTexture && !t.storage {
		return fmt.Errorf("%w: %q needs a random write texture", compute.ErrResourceKind, name)
	}
	s.bind(kernel, name, t)
	return nil
}

func (s *Shader) resource(kernel compute.KernelID, name string) (compute.ResourceBinding, error) {
	if s.released {
		return compute.ResourceBinding{}, compute.ErrReleased
	}
	if _, err := s.program.KernelAt(kernel); err != nil {
		return compute.ResourceBinding{}, err
	}
	return s.program.Resource(name)
}

// bind invalidates the kernel's cached bind group when the resource changes.
func (s *Shader) bind(kernel compute.KernelID, name string, res any) {
	if s.bound[kernel][name] == res {
		return
	}
	s.bound[kernel][name] = res
	if g := s.groups[kernel]; g != nil {
		g.Release()
		s.groups[kernel] = nil
	}
}

func (s *Shader) Dispatch(kernel compute.KernelID, x, y, z uint32) error {
	if s.released {
		return compute.ErrReleased
	}
	k, err := s.program.KernelAt(kernel)
	if err != nil {
		return err
	}
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("%w: %dx%dx%d", compute.ErrInvalidDispatch, x, y, z)
	}

	group, err := s.bindGroup(kernel, k)
	if err != nil {
		return err
	}

	if s.uniforms.Dirty() {
		if err := s.dev.queue.WriteBuffer(s.uniformBuf, 0, s.uniforms.Bytes()); err != nil {
			return err
		}
		s.uniforms.MarkClean()
	}

	encoder, err := s.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(s.pipelines[kernel])
	pass.SetBindGroup(s.program.Group, group, nil)
	pass.DispatchWorkgroups(x, y, z)
	if err := pass.End(); err != nil {
		return fmt.Errorf("dispatching %s: %w", k.Name, err)
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer cmdBuf.Release()
	s.dev.queue.Submit(cmdBuf)
	return nil
}

func (s *Shader) bindGroup(kernel compute.KernelID, k compute.Kernel) (*wgpu.BindGroup, error) {
	entries := []wgpu.BindGroupEntry{{
		Binding: s.program.UniformBinding,
		Buffer:  s.uniformBuf,
		Size:    wgpu.WholeSize,
	}}
	for _, name := range k.Resources {
		r, _ := s.program.Resource(name)
		switch res := s.bound[kernel][name].(type) {
		case *Buffer:
			if res.released {
				return nil, fmt.Errorf("%w: %q on kernel %q", compute.ErrReleased, name, k.Name)
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: r.Binding, Buffer: res.buf, Size: wgpu.WholeSize})
		case *Texture:
			if res.released {
				return nil, fmt.Errorf("%w: %q on kernel %q", compute.ErrReleased, name, k.Name)
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: r.Binding, TextureView: res.view})
		default:
			return nil, fmt.Errorf("%w: %q on kernel %q", compute.ErrUnboundResource, name, k.Name)
		}
	}

	if g := s.groups[kernel]; g != nil {
		return g, nil
	}
	layout := s.pipelines[kernel].GetBindGroupLayout(s.program.Group)
	defer layout.Release()
	g, err := s.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.program.Label + " " + k.Name,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", k.Name, err)
	}
	s.groups[kernel] = g
	return g, nil
}

// Release frees the pipelines and the uniform buffer. Bound resources stay
// with their owners.
func (s *Shader) Release() {
	if s.released {
		return
	}
	s.released = true
	for _, g := range s.groups {
		if g != nil {
			g.Release()
		}
	}
	for _, p := range s.pipelines {
		p.Release()
	}
	if s.uniformBuf != nil {
		s.uniformBuf.Release()
	}
	if s.module != nil {
		s.module.Release()
	}
}
