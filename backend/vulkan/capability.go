package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// Modifiers enumerates the DRM format modifiers the device can use with
// the format, via VK_EXT_image_drm_format_modifier's format-properties
// chain.
func (d *Device) Modifiers(f backend.Format) []backend.ModifierProperties {
	return d.drmFormatModifiers(vk.Format(f))
}

// ImageSupported probes vkGetPhysicalDeviceImageFormatProperties2 with the
// external-memory and (when applicable) modifier chains, mirroring what
// CreateImage will ask for. FORMAT_NOT_SUPPORTED is an expected outcome.
func (d *Device) ImageSupported(f backend.Format, tiling backend.Tiling, modifier uint64, usage backend.Usage) bool {
	res := d.imageFormatSupported(vk.Format(f), tiling, modifier, usage)
	switch res {
	case vk.Success:
		return true
	case vk.ErrorFormatNotSupported:
		return false
	default:
		core.LogError("image format probe failed: %s", resultString(res))
		return false
	}
}

func imageTiling(t backend.Tiling) vk.ImageTiling {
	if t == backend.TilingModifier {
		return vk.ImageTilingDrmFormatModifier
	}
	return vk.ImageTilingLinear
}

func imageUsageFlags(u backend.Usage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&backend.UsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit
	}
	if u&backend.UsageRenderTarget != 0 {
		flags |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}
