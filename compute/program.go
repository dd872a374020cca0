package compute

import (
	"fmt"
)

type UniformKind int

const (
	UniformFloat UniformKind = iota
	UniformInt
	UniformUint
	UniformBool
	UniformVec2
)

func (k UniformKind) size() uint32 {
	if k == UniformVec2 {
		return 8
	}
	return 4
}

func (k UniformKind) String() string {
	switch k {
	case UniformFloat:
		return "float"
	case UniformInt:
		return "int"
	case UniformUint:
		return "uint"
	case UniformBool:
		return "bool"
	case UniformVec2:
		return "vec2"
	}
	return fmt.Sprintf("UniformKind(%d)", int(k))
}

type ResourceKind int

const (
	StorageBuffer ResourceKind = iota
	StorageTexture
	SampledTexture
)

func (k ResourceKind) String() string {
	switch k {
	case StorageBuffer:
		return "storage buffer"
	case StorageTexture:
		return "storage texture"
	case SampledTexture:
		return "texture"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// UniformField places a named scalar inside the uniform block.
type UniformField struct {
	Name   string
	Offset uint32
	Kind   UniformKind
}

// ResourceBinding maps a resource name to its binding slot.
type ResourceBinding struct {
	Name    string
	Binding uint32
	Kind    ResourceKind
}

// Kernel maps a kernel name to its entry point. Resources lists the bindings
// the entry point uses besides the uniform block, which every kernel reads.
type Kernel struct {
	Name       string
	EntryPoint string
	Resources  []string
}

// Program is the contract between host code and a shader source.
type Program struct {
	Label  string
	Source string

	// All bindings live in one bind group.
	Group          uint32
	UniformBinding uint32
	UniformSize    uint32

	Uniforms  []UniformField
	Resources []ResourceBinding
	Kernels   []Kernel
}

func (p *Program) Kernel(name string) (KernelID, error) {
	for i, k := range p.Kernels {
		if k.Name == name {
			return KernelID(i), nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

func (p *Program) KernelAt(id KernelID) (Kernel, error) {
	if id < 0 || int(id) >= len(p.Kernels) {
		return Kernel{}, fmt.Errorf("%w: id %d", ErrUnknownKernel, id)
	}
	return p.Kernels[id], nil
}

func (p *Program) Uniform(name string) (UniformField, error) {
	for _, u := range p.Uniforms {
		if u.Name == name {
			return u, nil
		}
	}
	return UniformField{}, fmt.Errorf("%w: %q", ErrUnknownUniform, name)
}

func (p *Program) Resource(name string) (ResourceBinding, error) {
	for _, r := range p.Resources {
		if r.Name == name {
			return r, nil
		}
	}
	return ResourceBinding{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
}

// Uses reports whether kernel id reads the named resource.
func (p *Program) Uses(id KernelID, name string) bool {
	k, err := p.KernelAt(id)
	if err != nil {
		return false
	}
	for _, r := range k.Resources {
		if r == name {
			return true
		}
	}
	return false
}

// Validate checks the layout is self consistent: uniform offsets are aligned
// and inside a 16-byte multiple block, bindings are unique and every kernel
// resource is declared.
func (p *Program) Validate() error {
	if p.UniformSize == 0 || p.UniformSize%16 != 0 {
		return fmt.Errorf("program %s: uniform size %d is not a positive multiple of 16", p.Label, p.UniformSize)
	}
	names := map[string]bool{}
	for _, u := range p.Uniforms {
		if names[u.Name] {
			return fmt.Errorf("program %s: duplicate uniform %q", p.Label, u.Name)
		}
		names[u.Name] = true
		if u.Offset%u.Kind.size() != 0 {
			return fmt.Errorf("program %s: uniform %q offset %d not aligned to %d", p.Label, u.Name, u.Offset, u.Kind.size())
		}
		if u.Offset+u.Kind.size() > p.UniformSize {
			return fmt.Errorf("program %s: uniform %q overflows block of %d bytes", p.Label, u.Name, p.UniformSize)
		}
	}

	bindings := map[uint32]string{p.UniformBinding: "uniforms"}
	for _, r := range p.Resources {
		if other, ok := bindings[r.Binding]; ok {
			return fmt.Errorf("program %s: binding %d used by %q and %q", p.Label, r.Binding, other, r.Name)
		}
		bindings[r.Binding] = r.Name
	}

	if len(p.Kernels) == 0 {
		return fmt.Errorf("program %s: no kernels", p.Label)
	}
	for _, k := range p.Kernels {
		if k.EntryPoint == "" {
			return fmt.Errorf("program %s: kernel %q has no entry point", p.Label, k.Name)
		}
		for _, name := range k.Resources {
			if _, err := p.Resource(name); err != nil {
				return fmt.Errorf("program %s: kernel %q: %w", p.Label, k.Name, err)
			}
		}
	}
	return nil
}
