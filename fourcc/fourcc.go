// Package fourcc carries the DRM pixel-format vocabulary shared between
// buffer producers and the importer. Codes and modifiers use the values
// from drm_fourcc.h so they can be exchanged with any DRM/GBM allocator.
package fourcc

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Code is a little-endian packed DRM fourcc.
type Code uint32

func code(a, b, c, d byte) Code {
	return Code(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

const Invalid Code = 0

var (
	// single plane, 32 bpp
	ARGB8888    = code('A', 'R', '2', '4')
	XRGB8888    = code('X', 'R', '2', '4')
	ABGR8888    = code('A', 'B', '2', '4')
	XBGR8888    = code('X', 'B', '2', '4')
	RGBA8888    = code('R', 'A', '2', '4')
	BGRA8888    = code('B', 'A', '2', '4')
	ARGB2101010 = code('A', 'R', '3', '0')
	XRGB2101010 = code('X', 'R', '3', '0')
	ABGR2101010 = code('A', 'B', '3', '0')
	XBGR2101010 = code('X', 'B', '3', '0')
	// single plane, 24 bpp
	RGB888 = code('R', 'G', '2', '4')
	BGR888 = code('B', 'G', '2', '4')
	// single plane, 16 bpp
	RGB565 = code('R', 'G', '1', '6')
	BGR565 = code('B', 'G', '1', '6')
	RG88   = code('R', 'G', '8', '8')
	GR88   = code('G', 'R', '8', '8')
	R16    = code('R', '1', '6', ' ')
	// single plane, 8 bpp
	R8 = code('R', '8', ' ', ' ')
	// two planes, YUV 4:2:0
	NV12 = code('N', 'V', '1', '2')
)

type info struct {
	code   Code
	name   string
	planes int
	// bytes per pixel of plane 0; 0 for subsampled formats where the
	// notion is per-plane
	bpp      int
	hasAlpha bool
	// the opaque (X) sibling sharing the same memory layout, if any
	opaque Code
}

var formats = []info{
	{ARGB8888, "ARGB8888", 1, 4, true, XRGB8888},
	{XRGB8888, "XRGB8888", 1, 4, false, 0},
	{ABGR8888, "ABGR8888", 1, 4, true, XBGR8888},
	{XBGR8888, "XBGR8888", 1, 4, false, 0},
	{RGBA8888, "RGBA8888", 1, 4, true, 0},
	{BGRA8888, "BGRA8888", 1, 4, true, 0},
	{ARGB2101010, "ARGB2101010", 1, 4, true, XRGB2101010},
	{XRGB2101010, "XRGB2101010", 1, 4, false, 0},
	{ABGR2101010, "ABGR2101010", 1, 4, true, XBGR2101010},
	{XBGR2101010, "XBGR2101010", 1, 4, false, 0},
	{RGB888, "RGB888", 1, 3, false, 0},
	{BGR888, "BGR888", 1, 3, false, 0},
	{RGB565, "RGB565", 1, 2, false, 0},
	{BGR565, "BGR565", 1, 2, false, 0},
	{RG88, "RG88", 1, 2, false, 0},
	{GR88, "GR88", 1, 2, false, 0},
	{R16, "R16", 1, 2, false, 0},
	{R8, "R8", 1, 1, false, 0},
	{NV12, "NV12", 2, 0, false, 0},
}

func lookup(c Code) (info, bool) {
	idx := slices.IndexFunc(formats, func(f info) bool { return f.code == c })
	if idx < 0 {
		return info{}, false
	}
	return formats[idx], true
}

// Known reports whether c is a fourcc this library understands.
func Known(c Code) bool {
	_, ok := lookup(c)
	return ok
}

// PlaneCount returns the number of memory planes the format occupies, or 0
// for unknown codes.
func PlaneCount(c Code) int {
	f, ok := lookup(c)
	if !ok {
		return 0
	}
	return f.planes
}

// BytesPerPixel returns the packed pixel size of plane 0, or 0 when the
// format is unknown or per-plane subsampled.
func BytesPerPixel(c Code) int {
	f, ok := lookup(c)
	if !ok {
		return 0
	}
	return f.bpp
}

// HasAlpha reports whether the format carries an alpha channel.
func HasAlpha(c Code) bool {
	f, ok := lookup(c)
	return ok && f.hasAlpha
}

// OpaqueSibling returns the X variant sharing c's memory layout. Importers
// treat the pair as interchangeable on the wire, matching DRM convention.
func OpaqueSibling(c Code) (Code, bool) {
	f, ok := lookup(c)
	if !ok || f.opaque == 0 {
		return Invalid, false
	}
	return f.opaque, true
}

func (c Code) String() string {
	if f, ok := lookup(c); ok {
		return f.name
	}
	return fmt.Sprintf("fourcc(%q)", string([]byte{
		byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24),
	}))
}

// Parse resolves a format by its DRM name, e.g. "ARGB8888".
func Parse(name string) (Code, error) {
	idx := slices.IndexFunc(formats, func(f info) bool { return f.name == name })
	if idx < 0 {
		return Invalid, fmt.Errorf("unknown fourcc name %q", name)
	}
	return formats[idx].code, nil
}

// Names lists every format name this library understands, sorted.
func Names() []string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.name)
	}
	slices.Sort(names)
	return names
}
