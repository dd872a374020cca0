// Package compute describes the host compute API a scene behaviour drives:
// kernels looked up by name, named uniforms, buffers and textures bound per
// kernel, and dispatch. The gpu package implements it on WebGPU; the
// computetest package records calls in memory.
package compute

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownKernel        = errors.New("compute: unknown kernel")
	ErrUnknownUniform       = errors.New("compute: unknown uniform")
	ErrUniformKind          = errors.New("compute: uniform kind mismatch")
	ErrUnknownResource      = errors.New("compute: unknown resource")
	ErrUnboundResource      = errors.New("compute: resource not bound")
	ErrResourceKind         = errors.New("compute: resource kind mismatch")
	ErrIncompatibleResource = errors.New("compute: resource belongs to another device")
	ErrInvalidDispatch      = errors.New("compute: invalid dispatch size")
	ErrReleased             = errors.New("compute: use after release")
)

// KernelID is the handle FindKernel returns. It is only meaningful for the
// shader that produced it.
type KernelID int

// Shader is a compiled compute program with a single uniform block shared by
// all of its kernels. Resource bindings are tracked per kernel.
type Shader interface {
	FindKernel(name string) (KernelID, error)

	SetInt(name string, v int32) error
	SetFloat(name string, v float32) error
	SetBool(name string, v bool) error
	SetVector(name string, v mgl32.Vec2) error

	SetBuffer(kernel KernelID, name string, buf Buffer) error
	SetTexture(kernel KernelID, name string, tex Texture) error

	// Dispatch runs the kernel over x*y*z workgroups.
	Dispatch(kernel KernelID, x, y, z uint32) error

	Release()
}

// Buffer is a structured GPU buffer of Count elements of Stride bytes.
type Buffer interface {
	Count() int
	Stride() int
	SetData(data []byte) error
	Release()
}

// Texture is a 2D GPU texture.
type Texture interface {
	Width() int
	Height() int
	Release()
}

// RenderTextureDesc describes a single channel float texture a kernel writes to.
type RenderTextureDesc struct {
	Label       string
	Width       int
	Height      int
	RandomWrite bool
}

// Device allocates resources for shaders created on it.
type Device interface {
	NewBuffer(label string, count, stride int) (Buffer, error)
	NewRenderTexture(desc RenderTextureDesc) (Texture, error)
	// NewTexture uploads tightly packed RGBA8 texels.
	NewTexture(label string, width, height int, rgba []byte) (Texture, error)
	// ReadTexture copies a render texture back to the CPU, row-major.
	ReadTexture(tex Texture) ([]float32, error)
}

// Workgroups returns how many groups of size cover n invocations.
func Workgroups(n int, size int) uint32 {
	if n <= 0 || size <= 0 {
		return 0
	}
	return uint32((n + size - 1) / size)
}
