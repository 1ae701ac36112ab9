package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// memoryPlaneAspects are the DRM memory-plane aspect bits in plane order,
// used for disjoint requirement queries and binds.
var memoryPlaneAspects = [4]vk.ImageAspectFlagBits{
	vk.ImageAspectMemoryPlane0Bit,
	vk.ImageAspectMemoryPlane1Bit,
	vk.ImageAspectMemoryPlane2Bit,
	vk.ImageAspectMemoryPlane3Bit,
}

// CreateImage creates the image shell for an external buffer. No memory is
// bound yet; the chain declares the dma-buf handle type and pins the
// layout, either through explicit plane layouts or a single-entry modifier
// list the driver resolves itself.
func (d *Device) CreateImage(info backend.ImageInfo) (backend.Image, error) {
	chain, release := externalImageChain(info)
	defer release()

	var flags vk.ImageCreateFlags
	if info.Disjoint {
		flags = vk.ImageCreateFlags(vk.ImageCreateDisjointBit)
	}

	createInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		PNext:         chain,
		Flags:         flags,
		ImageType:     vk.ImageType2d,
		Format:        vk.Format(info.Format),
		Extent:        vk.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        imageTiling(info.Tiling),
		Usage:         imageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(d.LogicalDevice, &createInfo, d.Allocator, &image); res != vk.Success {
		return nil, deviceErr("vkCreateImage", res)
	}
	core.LogDebug("created external image %dx%d format %d modifier 0x%x", info.Width, info.Height, info.Format, info.Modifier)
	return image, nil
}

// ImportMemory wraps one dma-buf fd in a VkDeviceMemory bound for the
// given memory plane. The driver takes fd ownership on success; on failure
// the fd still belongs to the caller.
func (d *Device) ImportMemory(img backend.Image, imp backend.MemoryImport) (backend.Memory, error) {
	image := img.(vk.Image)

	size, dedicated, ok := d.imageMemoryRequirements(image, imp.Plane, imp.Disjoint)
	if !ok {
		return nil, deviceErr("vkGetImageMemoryRequirements2", vk.ErrorExtensionNotPresent)
	}

	importInfo := vk.ImportMemoryFdInfo{
		SType:      vk.StructureTypeImportMemoryFdInfo,
		HandleType: vk.ExternalMemoryHandleTypeDmaBufBit,
		Fd:         int32(imp.FD),
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(&importInfo),
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: imp.MemoryTypeIndex,
	}
	var dedicatedInfo vk.MemoryDedicatedAllocateInfo
	if dedicated {
		dedicatedInfo = vk.MemoryDedicatedAllocateInfo{
			SType: vk.StructureTypeMemoryDedicatedAllocateInfo,
			PNext: unsafe.Pointer(&importInfo),
			Image: image,
		}
		allocInfo.PNext = unsafe.Pointer(&dedicatedInfo)
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.LogicalDevice, &allocInfo, d.Allocator, &memory); res != vk.Success {
		return nil, deviceErr("vkAllocateMemory", res)
	}
	return memory, nil
}

// BindImage attaches the imported memory objects. Disjoint images bind
// per memory plane through vkBindImageMemory2; plain images bind the
// single allocation at offset zero.
func (d *Device) BindImage(img backend.Image, binds []backend.Binding) error {
	image := img.(vk.Image)

	// The plain 1.0 bind covers the common single-allocation case; the
	// per-plane chain only exists on the 1.1 entry point.
	if len(binds) == 1 && !binds[0].Disjoint {
		if res := vk.BindImageMemory(d.LogicalDevice, image, binds[0].Memory.(vk.DeviceMemory), 0); res != vk.Success {
			return deviceErr("vkBindImageMemory", res)
		}
		return nil
	}

	if res := d.bindImageMemory2(image, binds); res != vk.Success {
		return deviceErr("vkBindImageMemory2", res)
	}
	return nil
}

// CreateView creates the sampling/attachment view over the bound image.
func (d *Device) CreateView(img backend.Image, f backend.Format) (backend.View, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.(vk.Image),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(f),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(d.LogicalDevice, &createInfo, d.Allocator, &view); res != vk.Success {
		return nil, deviceErr("vkCreateImageView", res)
	}
	return view, nil
}

func (d *Device) DestroyView(v backend.View) {
	vk.DestroyImageView(d.LogicalDevice, v.(vk.ImageView), d.Allocator)
}

func (d *Device) DestroyImage(img backend.Image) {
	vk.DestroyImage(d.LogicalDevice, img.(vk.Image), d.Allocator)
}

func (d *Device) FreeMemory(m backend.Memory) {
	vk.FreeMemory(d.LogicalDevice, m.(vk.DeviceMemory), d.Allocator)
}
