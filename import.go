package dmatex

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// importedResource owns the backend image and its imported memory
// bindings. It is created fully bound or not at all.
type importedResource struct {
	image backend.Image
	mems  []backend.Memory
}

// importBuffer runs the unsafe import sequence: create the backend image,
// import one memory object per plane, bind everything at offset zero.
//
// Ownership of every plane fd transfers to this call. On success the
// driver has consumed them; on failure they are closed here before the
// error is returned, and any partially created backend object is
// released. Errors are always one of the core taxonomy.
func importBuffer(dev backend.Device, capability backend.Capability, desc *BufferDescriptor) (*importedResource, error) {
	planes := desc.Planes()

	closeAll := func(from int) {
		for _, p := range planes[from:] {
			if err := unix.Close(p.FD); err != nil {
				core.LogWarn("closing plane fd %d: %v", p.FD, err)
			}
		}
	}

	info := backend.ImageInfo{
		Width:    desc.Width(),
		Height:   desc.Height(),
		Format:   capability.Format,
		Tiling:   capability.Tiling,
		Modifier: capability.Modifier,
		Usage:    desc.Usage(),
		Disjoint: capability.Disjoint,
	}
	if capability.Tiling == backend.TilingModifier && len(planes) == 1 {
		info.PlaneLayouts = []backend.PlaneLayout{{
			Offset:   uint64(planes[0].Offset),
			RowPitch: uint64(planes[0].Stride),
		}}
	}

	image, err := dev.CreateImage(info)
	if err != nil {
		closeAll(0)
		return nil, convertImportErr(core.StepImageCreation, err)
	}

	// Disjoint images import one memory object per plane; otherwise a
	// single object backs the whole image through plane 0's fd.
	fdCount := 1
	if capability.Disjoint {
		fdCount = len(planes)
	}

	mems := make([]backend.Memory, 0, fdCount)
	for i := 0; i < fdCount; i++ {
		mem, err := dev.ImportMemory(image, backend.MemoryImport{
			FD:              planes[i].FD,
			Plane:           i,
			MemoryTypeIndex: capability.MemoryTypeIndex,
			Disjoint:        capability.Disjoint,
		})
		if err != nil {
			for _, m := range mems {
				dev.FreeMemory(m)
			}
			dev.DestroyImage(image)
			closeAll(i)
			return nil, convertImportErr(core.StepMemoryImport, err)
		}
		mems = append(mems, mem)
	}
	// Fds past the imported range (non-disjoint multi-plane buffers share
	// one allocation) are not consumed by the driver.
	closeAll(fdCount)

	binds := make([]backend.Binding, len(mems))
	for i, m := range mems {
		binds[i] = backend.Binding{Memory: m, Plane: i, Disjoint: capability.Disjoint}
	}
	if err := dev.BindImage(image, binds); err != nil {
		for _, m := range mems {
			dev.FreeMemory(m)
		}
		dev.DestroyImage(image)
		return nil, convertImportErr(core.StepBind, err)
	}

	return &importedResource{image: image, mems: mems}, nil
}

// closePlanes consumes descriptor fds on paths that never reach the
// backend import, keeping the ownership contract uniform: a descriptor's
// fds are gone after Import returns, success or not.
func closePlanes(desc *BufferDescriptor) {
	for _, p := range desc.Planes() {
		if err := unix.Close(p.FD); err != nil {
			core.LogWarn("closing plane fd %d: %v", p.FD, err)
		}
	}
}

func (r *importedResource) release(dev backend.Device) {
	// Teardown order matters: memory must not outlive the image binding,
	// the image must not outlive the device.
	for _, m := range r.mems {
		dev.FreeMemory(m)
	}
	dev.DestroyImage(r.image)
}

func isDeviceLost(err error) bool {
	return errors.Is(err, core.ErrDeviceLost)
}

func convertImportErr(step core.ImportStep, err error) error {
	if errors.Is(err, core.ErrDeviceLost) {
		return fmt.Errorf("%s: %w", step, core.ErrDeviceLost)
	}
	return core.NewImportError(step, err)
}
