package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// fourccToVkFormat maps the DRM wire format to the Vulkan format with the
// same memory layout. DRM names components from most to least significant
// byte while Vulkan names them in memory order, hence the apparent swaps.
func fourccToVkFormat(code fourcc.Code) (vk.Format, bool) {
	switch code {
	case fourcc.ABGR8888, fourcc.XBGR8888:
		return vk.FormatR8g8b8a8Unorm, true
	case fourcc.ARGB8888, fourcc.XRGB8888:
		return vk.FormatB8g8r8a8Unorm, true
	case fourcc.RGBA8888:
		return vk.FormatA8b8g8r8UnormPack32, true
	case fourcc.BGRA8888:
		return vk.FormatB8g8r8a8Unorm, true
	case fourcc.ABGR2101010, fourcc.XBGR2101010:
		return vk.FormatA2b10g10r10UnormPack32, true
	case fourcc.ARGB2101010, fourcc.XRGB2101010:
		return vk.FormatA2r10g10b10UnormPack32, true
	case fourcc.RGB888:
		return vk.FormatB8g8r8Unorm, true
	case fourcc.BGR888:
		return vk.FormatR8g8b8Unorm, true
	case fourcc.RGB565:
		return vk.FormatR5g6b5UnormPack16, true
	case fourcc.BGR565:
		return vk.FormatB5g6r5UnormPack16, true
	case fourcc.RG88:
		return vk.FormatR8g8Unorm, true
	case fourcc.GR88:
		return vk.FormatR8g8Unorm, true
	case fourcc.R16:
		return vk.FormatR16Unorm, true
	case fourcc.R8:
		return vk.FormatR8Unorm, true
	case fourcc.NV12:
		return vk.FormatG8B8r82plane420Unorm, true
	}
	return vk.FormatUndefined, false
}

// vkFormatToSrgb returns the sRGB sibling of a UNORM format, when Vulkan
// defines one.
func vkFormatToSrgb(format vk.Format) (vk.Format, bool) {
	switch format {
	case vk.FormatR8Unorm:
		return vk.FormatR8Srgb, true
	case vk.FormatR8g8Unorm:
		return vk.FormatR8g8Srgb, true
	case vk.FormatR8g8b8Unorm:
		return vk.FormatR8g8b8Srgb, true
	case vk.FormatB8g8r8Unorm:
		return vk.FormatB8g8r8Srgb, true
	case vk.FormatR8g8b8a8Unorm:
		return vk.FormatR8g8b8a8Srgb, true
	case vk.FormatB8g8r8a8Unorm:
		return vk.FormatB8g8r8a8Srgb, true
	case vk.FormatA8b8g8r8UnormPack32:
		return vk.FormatA8b8g8r8SrgbPack32, true
	}
	return vk.FormatUndefined, false
}

// NativeFormat implements backend.Device. With srgb set it prefers the
// sRGB-encoded sibling and reports false when none exists, letting the
// negotiator retry without the preference.
func (d *Device) NativeFormat(code fourcc.Code, srgb bool) (backend.Format, bool) {
	format, ok := fourccToVkFormat(code)
	if !ok {
		return backend.FormatUndefined, false
	}
	if srgb {
		sf, ok := vkFormatToSrgb(format)
		if !ok {
			return backend.FormatUndefined, false
		}
		format = sf
	}
	return backend.Format(format), true
}
