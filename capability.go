package dmatex

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// NegotiateOptions tune capability negotiation.
type NegotiateOptions struct {
	// AllowLinearFallback permits a plain linear-tiling import when the
	// descriptor does not fix a modifier (ModifierInvalid) and the device
	// offers no usable modifier path.
	AllowLinearFallback bool
}

// Negotiate checks whether the device can import the described buffer and,
// if so, returns the parameters the importer must use. A device/driver
// that simply lacks the capability yields core.ErrNotSupported, which the
// host should treat as "skip the feature", not as a failure.
//
// Negotiation is deterministic: equal descriptors against unchanged device
// state produce equal capabilities.
func Negotiate(dev backend.Device, desc *BufferDescriptor, opts NegotiateOptions) (backend.Capability, error) {
	var cap backend.Capability

	if !slices.Contains(dev.HandleTypes(), desc.HandleType()) {
		return cap, fmt.Errorf("%w: device imports no %v handles", core.ErrNotSupported, desc.HandleType())
	}

	format, ok := dev.NativeFormat(desc.Format(), desc.SRGB())
	if !ok && desc.SRGB() {
		// No sRGB sibling; fall back to the plain encoding.
		format, ok = dev.NativeFormat(desc.Format(), false)
	}
	if !ok {
		return cap, fmt.Errorf("%w: no native format for %s", core.ErrNotSupported, desc.Format())
	}

	mods := dev.Modifiers(format)
	idx := slices.IndexFunc(mods, func(m backend.ModifierProperties) bool {
		return m.Modifier == uint64(desc.Modifier())
	})

	if idx >= 0 {
		// Most specific first: the modifier the producer reported.
		m := mods[idx]
		if int(m.PlaneCount) != desc.PlaneCount() {
			return cap, fmt.Errorf("%w: modifier %s expects %d planes, descriptor has %d",
				core.ErrInvalidDescriptor, desc.Modifier(), m.PlaneCount, desc.PlaneCount())
		}
		cap = backend.Capability{
			Format:     format,
			Tiling:     backend.TilingModifier,
			Modifier:   m.Modifier,
			PlaneCount: m.PlaneCount,
			Disjoint:   m.Disjoint && m.PlaneCount > 1,
		}
	} else {
		// Linear fallback only when the producer left the layout open.
		if !opts.AllowLinearFallback || desc.Modifier() != fourcc.ModifierInvalid {
			return cap, fmt.Errorf("%w: device has no modifier %s for %s",
				core.ErrNotSupported, desc.Modifier(), desc.Format())
		}
		if desc.PlaneCount() != 1 {
			return cap, fmt.Errorf("%w: linear fallback is single-plane only", core.ErrNotSupported)
		}
		cap = backend.Capability{
			Format:     format,
			Tiling:     backend.TilingLinear,
			Modifier:   0,
			PlaneCount: 1,
		}
	}

	if !dev.ImageSupported(cap.Format, cap.Tiling, cap.Modifier, desc.Usage()) {
		return backend.Capability{}, fmt.Errorf("%w: image %s/%v rejected by device",
			core.ErrNotSupported, desc.Format(), desc.Usage())
	}

	memType, ok := dev.ImportMemoryTypeIndex()
	if !ok {
		return backend.Capability{}, fmt.Errorf("%w: no importable memory type", core.ErrNotSupported)
	}
	cap.MemoryTypeIndex = memType
	return cap, nil
}
