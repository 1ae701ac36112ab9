// Package backend defines the capability-set seam between the import
// pipeline and a concrete graphics backend. The pipeline only ever talks
// to a Device; all driver-extension calls live behind implementations of
// it (currently only Vulkan, see backend/vulkan).
package backend

import "github.com/spaghettifunk/dmatex/fourcc"

// HandleType identifies the platform representation of a foreign buffer.
type HandleType int

const (
	HandleNone HandleType = iota
	// HandleDmaBuf is a Linux dma-buf file descriptor.
	HandleDmaBuf
	// HandleOpaqueFd is an opaque POSIX fd exported by another Vulkan
	// instance. Declared for completeness; no negotiator accepts it yet.
	HandleOpaqueFd
)

// Format is a backend-native image format code (a VkFormat value on the
// Vulkan backend). Opaque to the pipeline.
type Format uint32

const FormatUndefined Format = 0

// Usage is the intended use of the imported image.
type Usage uint32

const (
	UsageSampled Usage = 1 << iota
	UsageRenderTarget
)

// Tiling selects how the imported image's memory layout is described.
type Tiling int

const (
	// TilingModifier: layout fixed by an explicit DRM format modifier.
	TilingModifier Tiling = iota
	// TilingLinear: plain row-major fallback layout.
	TilingLinear
)

// ModifierProperties describes one layout modifier the device can import
// for a given format.
type ModifierProperties struct {
	Modifier   uint64
	PlaneCount uint32
	// Disjoint images bind each memory plane separately.
	Disjoint bool
}

// Capability is the outcome of a successful negotiation: everything the
// importer needs to create and bind the image. Valid for the lifetime of
// the device that produced it.
type Capability struct {
	Format          Format
	Tiling          Tiling
	Modifier        uint64
	PlaneCount      uint32
	Disjoint        bool
	MemoryTypeIndex uint32
}

// Image, Memory and View are opaque backend objects. The pipeline never
// inspects them; it only threads them back into the owning Device.
type (
	Image  interface{}
	Memory interface{}
	View   interface{}
)

// PlaneLayout is the caller-reported memory layout of one plane, used for
// explicit-layout image creation.
type PlaneLayout struct {
	Offset   uint64
	RowPitch uint64
}

// ImageInfo parametrizes backend image creation for an external buffer.
type ImageInfo struct {
	Width, Height uint32
	Format        Format
	Tiling        Tiling
	Modifier      uint64
	Usage         Usage
	Disjoint      bool
	// Explicit per-plane layouts; required when Tiling is TilingModifier
	// and the image has a single memory plane.
	PlaneLayouts []PlaneLayout
}

// MemoryImport describes one foreign fd to bring into the device. On
// success the backend owns the fd; on failure the caller still does.
type MemoryImport struct {
	FD              int
	Plane           int
	MemoryTypeIndex uint32
	// Disjoint means the memory backs one plane of a disjoint image, so
	// size requirements are queried per plane.
	Disjoint bool
}

// Binding attaches imported memory to one plane of an image.
type Binding struct {
	Memory Memory
	Plane  int
	// Disjoint selects per-plane binding; plain bind otherwise.
	Disjoint bool
}

// Device is the narrow, audited boundary under the import pipeline.
//
// Query methods are safe to call concurrently. CreateImage, ImportMemory,
// BindImage and the destroy calls follow the graphics API's own threading
// rules: the host must not race them against each other or against device
// teardown. Errors carrying core.ErrDeviceLost are fatal for every object
// created by the device.
type Device interface {
	// HandleTypes lists the external-memory handle types the device can
	// import. Empty means the required extensions are missing.
	HandleTypes() []HandleType

	// NativeFormat maps a DRM fourcc (and sRGB preference) to a backend
	// format. ok is false when the device has no equivalent.
	NativeFormat(code fourcc.Code, srgb bool) (f Format, ok bool)

	// Modifiers enumerates the layout modifiers the device can import
	// for the format.
	Modifiers(f Format) []ModifierProperties

	// ImageSupported probes whether an image with the given parameters
	// can be created at all.
	ImageSupported(f Format, tiling Tiling, modifier uint64, usage Usage) bool

	// ImportMemoryTypeIndex picks a memory type suitable for external
	// imports. ok is false when no type qualifies.
	ImportMemoryTypeIndex() (index uint32, ok bool)

	CreateImage(info ImageInfo) (Image, error)
	ImportMemory(img Image, imp MemoryImport) (Memory, error)
	BindImage(img Image, binds []Binding) error
	CreateView(img Image, f Format) (View, error)

	DestroyView(v View)
	DestroyImage(img Image)
	FreeMemory(m Memory)
}
