// Package computetest provides an in-memory compute.Device and compute.Shader
// that record every call, for testing code that drives compute kernels
// without a GPU.
package computetest

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/DenizBicer/Physarum/compute"
)

// Call is one recorded host API call. Kernel is the kernel name, not its id,
// so sequences read well in diffs.
type Call struct {
	Op     string
	Kernel string
	Name   string
	Value  any
	Groups [3]uint32
}

type failures map[string]error

func (f failures) take(op string) error {
	if err, ok := f[op]; ok {
		delete(f, op)
		return err
	}
	return nil
}

type Buffer struct {
	Label    string
	count    int
	stride   int
	Data     []byte
	Released int
}

func (b *Buffer) Count() int  { return b.count }
func (b *Buffer) Stride() int { return b.stride }
func (b *Buffer) Release()    { b.Released++ }

func (b *Buffer) SetData(data []byte) error {
	if b.Released > 0 {
		return compute.ErrReleased
	}
	if len(data) != b.count*b.stride {
		return fmt.Errorf("buffer %s: got %d bytes, want %d", b.Label, len(data), b.count*b.stride)
	}
	b.Data = append(b.Data[:0], data...)
	return nil
}

type Texture struct {
	Label       string
	width       int
	height      int
	RandomWrite bool
	// RGBA holds uploaded texels for sampled textures.
	RGBA []byte
	// Texels is what ReadTexture returns for render textures.
	Texels   []float32
	Released int
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }
func (t *Texture) Release()    { t.Released++ }

// Device records allocations. Use Fail to make the next call of an
// operation ("NewBuffer", "NewRenderTexture", "NewTexture", "ReadTexture")
// return an error.
type Device struct {
	Buffers  []*Buffer
	Textures []*Texture
	Reads    int
	fail     failures
}

func NewDevice() *Device {
	return &Device{fail: failures{}}
}

func (d *Device) Fail(op string, err error) { d.fail[op] = err }

func (d *Device) NewBuffer(label string, count, stride int) (compute.Buffer, error) {
	if err := d.fail.take("NewBuffer"); err != nil {
		return nil, err
	}
	b := &Buffer{Label: label, count: count, stride: stride, Data: make([]byte, count*stride)}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) NewRenderTexture(desc compute.RenderTextureDesc) (compute.Texture, error) {
	if err := d.fail.take("NewRenderTexture"); err != nil {
		return nil, err
	}
	t := &Texture{
		Label:       desc.Label,
		width:       desc.Width,
		height:      desc.Height,
		RandomWrite: desc.RandomWrite,
		Texels:      make([]float32, desc.Width*desc.Height),
	}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) NewTexture(label string, width, height int, rgba []byte) (compute.Texture, error) {
	if err := d.fail.take("NewTexture"); err != nil {
		return nil, err
	}
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("texture %s: got %d bytes, want %d", label, len(rgba), width*height*4)
	}
	t := &Texture{Label: label, width: width, height: height, RGBA: append([]byte(nil), rgba...)}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) ReadTexture(tex compute.Texture) ([]float32, error) {
	if err := d.fail.take("ReadTexture"); err != nil {
		return nil, err
	}
	t, ok := tex.(*Texture)
	if !ok {
		return nil, compute.ErrIncompatibleResource
	}
	if t.Released > 0 {
		return nil, compute.ErrReleased
	}
	d.Reads++
	return append([]float32(nil), t.Texels...), nil
}

// Shader validates calls against a compute.Program the same way a real
// backend would and records them in order.
type Shader struct {
	Program  *compute.Program
	Uniforms *compute.UniformBlock
	Calls    []Call
	Released int
	// OnDispatch, when set, sees each valid dispatch before uniforms are
	// marked clean, so tests can inspect Bound and Uniforms at that moment.
	OnDispatch func(c Call)

	bound map[compute.KernelID]map[string]any
	fail  failures
}

func NewShader(p *compute.Program) *Shader {
	return &Shader{
		Program:  p,
		Uniforms: compute.NewUniformBlock(p),
		bound:    map[compute.KernelID]map[string]any{},
		fail:     failures{},
	}
}

// Fail makes the next call of op (a method name such as "Dispatch") fail.
func (s *Shader) Fail(op string, err error) { s.fail[op] = err }

// Bound returns the resource bound to name on the named kernel, or nil.
func (s *Shader) Bound(kernel, name string) any {
	id, err := s.Program.Kernel(kernel)
	if err != nil {
		return nil
	}
	return s.bound[id][name]
}

// Ops returns the recorded operation names, in order.
func (s *Shader) Ops() []string {
	ops := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Dispatches returns the recorded Dispatch calls.
func (s *Shader) Dispatches() []Call {
	var res []Call
	for _, c := range s.Calls {
		if c.Op == "Dispatch" {
			res = append(res, c)
		}
	}
	return res
}

func (s *Shader) Reset() { s.Calls = s.Calls[:0] }

func (s *Shader) kernelName(id compute.KernelID) string {
	k, err := s.Program.KernelAt(id)
	if err != nil {
		return fmt.Sprintf("#%d", id)
	}
	return k.Name
}

func (s *Shader) check(op string) error {
	if s.Released > 0 {
		return compute.ErrReleased
	}
	return s.fail.take(op)
}

func (s *Shader) FindKernel(name string) (compute.KernelID, error) {
	if err := s.check("FindKernel"); err != nil {
		return -1, err
	}
	s.Calls = append(s.Calls, Call{Op: "FindKernel", Name: name})
	return s.Program.Kernel(name)
}

func (s *Shader) SetInt(name string, v int32) error {
	if err := s.check("SetInt"); err != nil {
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "SetInt", Name: name, Value: v})
	return s.Uniforms.SetInt(name, v)
}

func (s *Shader) SetFloat(name string, v float32) error {
	if err := s.check("SetFloat"); err != nil {
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "SetFloat", Name: name, Value: v})
	return s.Uniforms.SetFloat(name, v)
}

func (s *Shader) SetBool(name string, v bool) error {
	if err := s.check("SetBool"); err != nil {
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "SetBool", Name: name, Value: v})
	return s.Uniforms.SetBool(name, v)
}

func (s *Shader) SetVector(name string, v mgl32.Vec2) error {
	if err := s.check("SetVector"); err != nil {
		return err
	}
	s.Calls = append(s.Calls, Call{Op: "SetVector", Name: name, Value: v})
	return s.Uniforms.SetVector(name, v)
}

func (s *Shader) bind(op string, kernel compute.KernelID, name string, kind compute.ResourceKind, res any) error {
	if err := s.check(op); err != nil {
		return err
	}
	s.Calls = append(s.Calls, Call{Op: op, Kernel: s.kernelName(kernel), Name: name})
	if _, err := s.Program.KernelAt(kernel); err != nil {
		return err
	}
	r, err := s.Program.Resource(name)
	if err != nil {
		return err
	}
	if (kind == compute.StorageBuffer) != (r.Kind == compute.StorageBuffer) {
		return fmt.Errorf("%w: %q is a %s", compute.ErrResourceKind, name, r.Kind)
	}
	if s.bound[kernel] == nil {
		s.bound[kernel] = map[string]any{}
	}
	s.bound[kernel][name] = res
	return nil
}

func (s *Shader) SetBuffer(kernel compute.KernelID, name string, buf compute.Buffer) error {
	return s.bind("SetBuffer", kernel, name, compute.StorageBuffer, buf)
}

func (s *Shader) SetTexture(kernel compute.KernelID, name string, tex compute.Texture) error {
	return s.bind("SetTexture", kernel, name, compute.SampledTexture, tex)
}

func (s *Shader) Dispatch(kernel compute.KernelID, x, y, z uint32) error {
	if err := s.check("Dispatch"); err != nil {
		return err
	}
	call := Call{Op: "Dispatch", Kernel: s.kernelName(kernel), Groups: [3]uint32{x, y, z}}
	s.Calls = append(s.Calls, call)
	k, err := s.Program.KernelAt(kernel)
	if err != nil {
		return err
	}
	if x == 0 || y == 0 || z == 0 {
		return fmt.Errorf("%w: %dx%dx%d", compute.ErrInvalidDispatch, x, y, z)
	}
	for _, name := range k.Resources {
		if s.bound[kernel][name] == nil {
			return fmt.Errorf("%w: %q on kernel %q", compute.ErrUnboundResource, name, k.Name)
		}
	}
	if s.OnDispatch != nil {
		s.OnDispatch(call)
	}
	s.Uniforms.MarkClean()
	return nil
}

func (s *Shader) Release() { s.Released++ }
