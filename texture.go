package dmatex

import (
	"sync"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// Texture is the portable wrapper around an imported backend image. Any
// number of host references may share it; Release tears the backend state
// down exactly once, after which every accessor reports the texture gone.
//
// Release must run on a goroutine where driver calls are valid, i.e. the
// one owning the device.
type Texture struct {
	dev      backend.Device
	resource *importedResource
	view     backend.View

	format fourcc.Code
	native backend.Format
	width  uint32
	height uint32
	usage  Usage

	mu       sync.Mutex
	released bool
}

// wrapTexture lifts a bound importedResource into a Texture, creating the
// backend view the host samples or renders through. On view-creation
// failure the resource is released before returning.
func wrapTexture(dev backend.Device, res *importedResource, capability backend.Capability, desc *BufferDescriptor) (*Texture, error) {
	view, err := dev.CreateView(res.image, capability.Format)
	if err != nil {
		res.release(dev)
		return nil, convertImportErr(core.StepViewCreation, err)
	}
	return &Texture{
		dev:      dev,
		resource: res,
		view:     view,
		format:   desc.Format(),
		native:   capability.Format,
		width:    desc.Width(),
		height:   desc.Height(),
		usage:    desc.Usage(),
	}, nil
}

// Release destroys the view, frees the imported memory and destroys the
// image, in that order. Idempotent: only the first call does anything.
func (t *Texture) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()

	t.dev.DestroyView(t.view)
	t.resource.release(t.dev)
	core.LogDebug("released imported texture %s %dx%d", t.format, t.width, t.height)
}

// markLost poisons the texture without driver calls; used on device loss
// where the backend objects died with the device.
func (t *Texture) markLost() {
	t.mu.Lock()
	t.released = true
	t.mu.Unlock()
}

// Released reports whether teardown has run.
func (t *Texture) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Image exposes the raw backend image for ownership barriers and for
// host-engine wrappers built from raw backend objects. Nil after Release.
func (t *Texture) Image() backend.Image {
	if t.Released() {
		return nil
	}
	return t.resource.image
}

// View exposes the backend image view. Nil after Release.
func (t *Texture) View() backend.View {
	if t.Released() {
		return nil
	}
	return t.view
}

func (t *Texture) Format() fourcc.Code          { return t.format }
func (t *Texture) NativeFormat() backend.Format { return t.native }
func (t *Texture) Width() uint32                { return t.width }
func (t *Texture) Height() uint32               { return t.height }
func (t *Texture) Usage() Usage                 { return t.usage }
