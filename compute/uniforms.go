package compute

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// UniformBlock is the CPU copy of a program's uniform buffer. Setters only
// touch the staging bytes; Dirty tells the owner to upload before dispatch.
type UniformBlock struct {
	program *Program
	data    []byte
	dirty   bool
}

func NewUniformBlock(p *Program) *UniformBlock {
	return &UniformBlock{
		program: p,
		data:    make([]byte, p.UniformSize),
		dirty:   true,
	}
}

func (b *UniformBlock) field(name string, kinds ...UniformKind) (UniformField, error) {
	f, err := b.program.Uniform(name)
	if err != nil {
		return f, err
	}
	for _, k := range kinds {
		if f.Kind == k {
			return f, nil
		}
	}
	return f, fmt.Errorf("%w: %q is %s", ErrUniformKind, name, f.Kind)
}

func (b *UniformBlock) put(offset uint32, bits uint32) {
	binary.LittleEndian.PutUint32(b.data[offset:], bits)
	b.dirty = true
}

func (b *UniformBlock) SetInt(name string, v int32) error {
	f, err := b.field(name, UniformInt, UniformUint)
	if err != nil {
		return err
	}
	b.put(f.Offset, uint32(v))
	return nil
}

func (b *UniformBlock) SetFloat(name string, v float32) error {
	f, err := b.field(name, UniformFloat)
	if err != nil {
		return err
	}
	b.put(f.Offset, math.Float32bits(v))
	return nil
}

func (b *UniformBlock) SetBool(name string, v bool) error {
	f, err := b.field(name, UniformBool)
	if err != nil {
		return err
	}
	var bits uint32
	if v {
		bits = 1
	}
	b.put(f.Offset, bits)
	return nil
}

func (b *UniformBlock) SetVector(name string, v mgl32.Vec2) error {
	f, err := b.field(name, UniformVec2)
	if err != nil {
		return err
	}
	b.put(f.Offset, math.Float32bits(v[0]))
	b.put(f.Offset+4, math.Float32bits(v[1]))
	return nil
}

func (b *UniformBlock) Float(name string) (float32, error) {
	f, err := b.field(name, UniformFloat)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b.data[f.Offset:])), nil
}

func (b *UniformBlock) Int(name string) (int32, error) {
	f, err := b.field(name, UniformInt, UniformUint, UniformBool)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b.data[f.Offset:])), nil
}

func (b *UniformBlock) Vector(name string) (mgl32.Vec2, error) {
	f, err := b.field(name, UniformVec2)
	if err != nil {
		return mgl32.Vec2{}, err
	}
	return mgl32.Vec2{
		math.Float32frombits(binary.LittleEndian.Uint32(b.data[f.Offset:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b.data[f.Offset+4:])),
	}, nil
}

func (b *UniformBlock) Bytes() []byte { return b.data }
func (b *UniformBlock) Dirty() bool   { return b.dirty }
func (b *UniformBlock) MarkClean()    { b.dirty = false }
