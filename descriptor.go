// Package dmatex imports dma-buf backed GPU buffers into a local graphics
// device as sampled textures or render-target views, without copying.
//
// The pipeline is: BufferDescriptor (validated caller metadata) →
// Negotiate (device capability check) → import (backend calls) → Texture
// (portable wrapper) → Session (ownership). All of it must run on the
// goroutine that owns the graphics device.
package dmatex

import (
	"fmt"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// Usage declares what the host intends to do with the imported buffer.
type Usage = backend.Usage

const (
	UsageSampled      = backend.UsageSampled
	UsageRenderTarget = backend.UsageRenderTarget
)

const maxPlanes = 4

// Plane describes one memory plane of the foreign buffer. The fd is a
// dma-buf file descriptor; constructing a descriptor transfers its
// ownership to the import pipeline, which closes it on every path that
// does not hand it to the driver.
type Plane struct {
	FD     int
	Offset uint32
	Stride int32
}

// BufferDescriptor is validated caller metadata for one foreign buffer.
// It is immutable once built; construct it only through
// NewBufferDescriptor.
type BufferDescriptor struct {
	planes   []Plane
	width    uint32
	height   uint32
	format   fourcc.Code
	modifier fourcc.Modifier
	srgb     bool
	usage    Usage
}

// NewBufferDescriptor validates eagerly and never partially constructs:
// on error no fd has been consumed and no backend call has been made.
func NewBufferDescriptor(planes []Plane, width, height uint32, format fourcc.Code, modifier fourcc.Modifier, srgb bool, usage Usage) (*BufferDescriptor, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero extent %dx%d", core.ErrInvalidDescriptor, width, height)
	}
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: no planes", core.ErrInvalidDescriptor)
	}
	if len(planes) > maxPlanes {
		return nil, fmt.Errorf("%w: %d planes, at most %d supported", core.ErrInvalidDescriptor, len(planes), maxPlanes)
	}
	if !fourcc.Known(format) {
		return nil, fmt.Errorf("%w: unrecognized format %s", core.ErrInvalidDescriptor, format)
	}
	if usage == 0 || usage&^(UsageSampled|UsageRenderTarget) != 0 {
		return nil, fmt.Errorf("%w: unsupported usage %#x", core.ErrInvalidDescriptor, usage)
	}
	for i, p := range planes {
		if p.FD < 0 {
			return nil, fmt.Errorf("%w: plane %d has invalid fd %d", core.ErrInvalidDescriptor, i, p.FD)
		}
		if p.Stride < 0 {
			return nil, fmt.Errorf("%w: plane %d has negative stride %d", core.ErrInvalidDescriptor, i, p.Stride)
		}
	}
	d := &BufferDescriptor{
		planes:   make([]Plane, len(planes)),
		width:    width,
		height:   height,
		format:   format,
		modifier: modifier,
		srgb:     srgb,
		usage:    usage,
	}
	copy(d.planes, planes)
	return d, nil
}

func (d *BufferDescriptor) Width() uint32             { return d.width }
func (d *BufferDescriptor) Height() uint32            { return d.height }
func (d *BufferDescriptor) Format() fourcc.Code       { return d.format }
func (d *BufferDescriptor) Modifier() fourcc.Modifier { return d.modifier }
func (d *BufferDescriptor) SRGB() bool                { return d.srgb }
func (d *BufferDescriptor) Usage() Usage              { return d.usage }
func (d *BufferDescriptor) PlaneCount() int           { return len(d.planes) }

// Planes returns a copy; descriptors stay immutable.
func (d *BufferDescriptor) Planes() []Plane {
	out := make([]Plane, len(d.planes))
	copy(out, d.planes)
	return out
}

// HandleType reports the platform handle kind the descriptor carries.
// Only dma-buf fds exist on this platform.
func (d *BufferDescriptor) HandleType() backend.HandleType {
	return backend.HandleDmaBuf
}

func (d *BufferDescriptor) String() string {
	return fmt.Sprintf("%s %dx%d modifier=%s planes=%d", d.format, d.width, d.height, d.modifier, len(d.planes))
}
