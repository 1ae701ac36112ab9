package vulkan

/*
#cgo linux LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

// C ABI mirrors (64-bit Linux layouts from vulkan_core.h) for the
// Vulkan 1.1 commands the binding does not wrap, plus the pNext chain
// structs handed to the driver as raw pointers.

typedef struct DrmModifierProps {
	uint64_t drmFormatModifier;
	uint32_t drmFormatModifierPlaneCount;
	uint32_t drmFormatModifierTilingFeatures;
} DrmModifierProps;

typedef struct DrmModifierPropsList {
	uint32_t          sType;
	void*             pNext;
	uint32_t          drmFormatModifierCount;
	DrmModifierProps* pDrmFormatModifierProperties;
} DrmModifierPropsList;

typedef struct FormatProps2 {
	uint32_t sType;
	void*    pNext;
	uint32_t linearTilingFeatures;
	uint32_t optimalTilingFeatures;
	uint32_t bufferFeatures;
} FormatProps2;

typedef struct ImageFormatInfo2 {
	uint32_t sType;
	void*    pNext;
	uint32_t format;
	uint32_t type;
	uint32_t tiling;
	uint32_t usage;
	uint32_t flags;
} ImageFormatInfo2;

typedef struct ExternalImageFormatInfo {
	uint32_t sType;
	void*    pNext;
	uint32_t handleType;
} ExternalImageFormatInfo;

typedef struct DrmModifierImageInfo {
	uint32_t        sType;
	void*           pNext;
	uint64_t        drmFormatModifier;
	uint32_t        sharingMode;
	uint32_t        queueFamilyIndexCount;
	const uint32_t* pQueueFamilyIndices;
} DrmModifierImageInfo;

typedef struct ImageFormatProps2 {
	uint32_t sType;
	void*    pNext;
	uint32_t maxExtentWidth;
	uint32_t maxExtentHeight;
	uint32_t maxExtentDepth;
	uint32_t maxMipLevels;
	uint32_t maxArrayLayers;
	uint32_t sampleCounts;
	uint64_t maxResourceSize;
} ImageFormatProps2;

typedef struct ImageMemReqsInfo2 {
	uint32_t sType;
	void*    pNext;
	void*    image;
} ImageMemReqsInfo2;

typedef struct ImagePlaneMemReqsInfo {
	uint32_t sType;
	void*    pNext;
	uint32_t planeAspect;
} ImagePlaneMemReqsInfo;

typedef struct MemReqs2 {
	uint32_t sType;
	void*    pNext;
	uint64_t size;
	uint64_t alignment;
	uint32_t memoryTypeBits;
} MemReqs2;

typedef struct MemDedicatedReqs {
	uint32_t sType;
	void*    pNext;
	uint32_t prefersDedicatedAllocation;
	uint32_t requiresDedicatedAllocation;
} MemDedicatedReqs;

typedef struct BindImageMemInfo {
	uint32_t sType;
	void*    pNext;
	void*    image;
	void*    memory;
	uint64_t memoryOffset;
} BindImageMemInfo;

typedef struct BindImagePlaneMemInfo {
	uint32_t sType;
	void*    pNext;
	uint32_t planeAspect;
} BindImagePlaneMemInfo;

typedef struct ExtMemoryImageInfo {
	uint32_t sType;
	void*    pNext;
	uint32_t handleTypes;
} ExtMemoryImageInfo;

typedef struct ModifierListInfo {
	uint32_t        sType;
	void*           pNext;
	uint32_t        drmFormatModifierCount;
	const uint64_t* pDrmFormatModifiers;
} ModifierListInfo;

typedef struct SubresLayout {
	uint64_t offset;
	uint64_t size;
	uint64_t rowPitch;
	uint64_t arrayPitch;
	uint64_t depthPitch;
} SubresLayout;

typedef struct ModifierExplicitInfo {
	uint32_t            sType;
	void*               pNext;
	uint64_t            drmFormatModifier;
	uint32_t            drmFormatModifierPlaneCount;
	const SubresLayout* pPlaneLayouts;
} ModifierExplicitInfo;

typedef void* (*GetInstanceProcAddrFn)(void* instance, const char* pName);
typedef void (*GetPhysicalDeviceFormatProperties2Fn)(void* physicalDevice, uint32_t format, FormatProps2* pFormatProperties);
typedef int32_t (*GetPhysicalDeviceImageFormatProperties2Fn)(void* physicalDevice, const ImageFormatInfo2* pImageFormatInfo, ImageFormatProps2* pImageFormatProperties);
typedef void (*GetImageMemoryRequirements2Fn)(void* device, const ImageMemReqsInfo2* pInfo, MemReqs2* pMemoryRequirements);
typedef int32_t (*BindImageMemory2Fn)(void* device, uint32_t bindInfoCount, const BindImageMemInfo* pBindInfos);

static GetInstanceProcAddrFn instanceProcAddr;

static int loadVulkanLoader(void) {
	void* lib;
	if (instanceProcAddr) {
		return 1;
	}
	lib = dlopen("libvulkan.so.1", RTLD_NOW | RTLD_LOCAL);
	if (!lib) {
		lib = dlopen("libvulkan.so", RTLD_NOW | RTLD_LOCAL);
	}
	if (!lib) {
		return 0;
	}
	instanceProcAddr = (GetInstanceProcAddrFn)dlsym(lib, "vkGetInstanceProcAddr");
	return instanceProcAddr != NULL;
}

static void* vulkanProc(void* instance, const char* name) {
	if (!loadVulkanLoader()) {
		return NULL;
	}
	return instanceProcAddr(instance, name);
}

static void callFormatProperties2(void* fn, void* physicalDevice, uint32_t format, FormatProps2* props) {
	((GetPhysicalDeviceFormatProperties2Fn)fn)(physicalDevice, format, props);
}

static int32_t callImageFormatProperties2(void* fn, void* physicalDevice, const ImageFormatInfo2* info, ImageFormatProps2* props) {
	return ((GetPhysicalDeviceImageFormatProperties2Fn)fn)(physicalDevice, info, props);
}

static void callImageMemoryRequirements2(void* fn, void* device, const ImageMemReqsInfo2* info, MemReqs2* reqs) {
	((GetImageMemoryRequirements2Fn)fn)(device, info, reqs);
}

static int32_t callBindImageMemory2(void* fn, void* device, uint32_t count, const BindImageMemInfo* infos) {
	return ((BindImageMemory2Fn)fn)(device, count, infos);
}
*/
import "C"

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
)

// procTable holds the 1.1 entry points resolved through
// vkGetInstanceProcAddr. The binding wraps only Vulkan 1.0 commands, so
// the format-properties, image-format-properties, memory-requirements
// and bind variants with pNext chains are dispatched by hand.
type procTable struct {
	formatProperties2      unsafe.Pointer
	imageFormatProperties2 unsafe.Pointer
	memoryRequirements2    unsafe.Pointer
	bindMemory2            unsafe.Pointer
}

func (p *procTable) complete() bool {
	return p.formatProperties2 != nil && p.imageFormatProperties2 != nil &&
		p.memoryRequirements2 != nil && p.bindMemory2 != nil
}

// resolveProc looks an entry point up by its core name, falling back to
// the KHR alias for pre-1.1 instances carrying the extension.
func resolveProc(instance vk.Instance, coreName, khrName string) unsafe.Pointer {
	name := C.CString(coreName)
	p := C.vulkanProc(unsafe.Pointer(instance), name)
	C.free(unsafe.Pointer(name))
	if p == nil {
		name = C.CString(khrName)
		p = C.vulkanProc(unsafe.Pointer(instance), name)
		C.free(unsafe.Pointer(name))
	}
	return p
}

func (d *Device) resolveProcs() {
	d.procs = procTable{
		formatProperties2:      resolveProc(d.Instance, "vkGetPhysicalDeviceFormatProperties2", "vkGetPhysicalDeviceFormatProperties2KHR"),
		imageFormatProperties2: resolveProc(d.Instance, "vkGetPhysicalDeviceImageFormatProperties2", "vkGetPhysicalDeviceImageFormatProperties2KHR"),
		memoryRequirements2:    resolveProc(d.Instance, "vkGetImageMemoryRequirements2", "vkGetImageMemoryRequirements2KHR"),
		bindMemory2:            resolveProc(d.Instance, "vkBindImageMemory2", "vkBindImageMemory2KHR"),
	}
}

// drmFormatModifiers enumerates the modifiers the device supports for the
// format. Two-call pattern; all chain structs live in C memory because the
// driver walks them as raw pointers.
func (d *Device) drmFormatModifiers(format vk.Format) []backend.ModifierProperties {
	if d.procs.formatProperties2 == nil {
		return nil
	}

	list := (*C.DrmModifierPropsList)(C.calloc(1, C.sizeof_DrmModifierPropsList))
	props := (*C.FormatProps2)(C.calloc(1, C.sizeof_FormatProps2))
	defer C.free(unsafe.Pointer(list))
	defer C.free(unsafe.Pointer(props))

	list.sType = C.uint32_t(vk.StructureTypeDrmFormatModifierPropertiesList)
	props.sType = C.uint32_t(vk.StructureTypeFormatProperties2)
	props.pNext = unsafe.Pointer(list)

	C.callFormatProperties2(d.procs.formatProperties2, unsafe.Pointer(d.PhysicalDevice), C.uint32_t(format), props)

	count := int(list.drmFormatModifierCount)
	if count == 0 {
		return nil
	}

	entries := (*C.DrmModifierProps)(C.calloc(C.size_t(count), C.sizeof_DrmModifierProps))
	defer C.free(unsafe.Pointer(entries))
	list.pDrmFormatModifierProperties = entries

	C.callFormatProperties2(d.procs.formatProperties2, unsafe.Pointer(d.PhysicalDevice), C.uint32_t(format), props)

	out := make([]backend.ModifierProperties, 0, count)
	for _, p := range unsafe.Slice(entries, int(list.drmFormatModifierCount)) {
		out = append(out, backend.ModifierProperties{
			Modifier:   uint64(p.drmFormatModifier),
			PlaneCount: uint32(p.drmFormatModifierPlaneCount),
			Disjoint:   vk.FormatFeatureFlagBits(p.drmFormatModifierTilingFeatures)&vk.FormatFeatureDisjointBit != 0,
		})
	}
	return out
}

// imageFormatSupported probes the external-memory image capability for
// the exact parameters CreateImage will use.
func (d *Device) imageFormatSupported(format vk.Format, tiling backend.Tiling, modifier uint64, usage backend.Usage) vk.Result {
	if d.procs.imageFormatProperties2 == nil {
		return vk.ErrorExtensionNotPresent
	}

	info := (*C.ImageFormatInfo2)(C.calloc(1, C.sizeof_ImageFormatInfo2))
	external := (*C.ExternalImageFormatInfo)(C.calloc(1, C.sizeof_ExternalImageFormatInfo))
	modInfo := (*C.DrmModifierImageInfo)(C.calloc(1, C.sizeof_DrmModifierImageInfo))
	props := (*C.ImageFormatProps2)(C.calloc(1, C.sizeof_ImageFormatProps2))
	defer C.free(unsafe.Pointer(info))
	defer C.free(unsafe.Pointer(external))
	defer C.free(unsafe.Pointer(modInfo))
	defer C.free(unsafe.Pointer(props))

	info.sType = C.uint32_t(vk.StructureTypePhysicalDeviceImageFormatInfo2)
	info.pNext = unsafe.Pointer(external)
	info.format = C.uint32_t(format)
	info._type = C.uint32_t(vk.ImageType2d)
	info.tiling = C.uint32_t(imageTiling(tiling))
	info.usage = C.uint32_t(imageUsageFlags(usage))

	external.sType = C.uint32_t(vk.StructureTypePhysicalDeviceExternalImageFormatInfo)
	external.handleType = C.uint32_t(vk.ExternalMemoryHandleTypeDmaBufBit)

	if tiling == backend.TilingModifier {
		modInfo.sType = C.uint32_t(vk.StructureTypePhysicalDeviceImageDrmFormatModifierInfo)
		modInfo.drmFormatModifier = C.uint64_t(modifier)
		modInfo.sharingMode = C.uint32_t(vk.SharingModeExclusive)
		external.pNext = unsafe.Pointer(modInfo)
	}

	props.sType = C.uint32_t(vk.StructureTypeImageFormatProperties2)

	res := C.callImageFormatProperties2(d.procs.imageFormatProperties2, unsafe.Pointer(d.PhysicalDevice), info, props)
	return vk.Result(res)
}

// imageMemoryRequirements queries size and dedicated-allocation needs for
// the image, per memory plane when disjoint.
func (d *Device) imageMemoryRequirements(image vk.Image, plane int, disjoint bool) (size uint64, dedicated bool, ok bool) {
	if d.procs.memoryRequirements2 == nil {
		return 0, false, false
	}

	info := (*C.ImageMemReqsInfo2)(C.calloc(1, C.sizeof_ImageMemReqsInfo2))
	planeInfo := (*C.ImagePlaneMemReqsInfo)(C.calloc(1, C.sizeof_ImagePlaneMemReqsInfo))
	reqs := (*C.MemReqs2)(C.calloc(1, C.sizeof_MemReqs2))
	dedicatedReqs := (*C.MemDedicatedReqs)(C.calloc(1, C.sizeof_MemDedicatedReqs))
	defer C.free(unsafe.Pointer(info))
	defer C.free(unsafe.Pointer(planeInfo))
	defer C.free(unsafe.Pointer(reqs))
	defer C.free(unsafe.Pointer(dedicatedReqs))

	info.sType = C.uint32_t(vk.StructureTypeImageMemoryRequirementsInfo2)
	info.image = unsafe.Pointer(image)
	if disjoint {
		planeInfo.sType = C.uint32_t(vk.StructureTypeImagePlaneMemoryRequirementsInfo)
		planeInfo.planeAspect = C.uint32_t(memoryPlaneAspects[plane])
		info.pNext = unsafe.Pointer(planeInfo)
	}

	reqs.sType = C.uint32_t(vk.StructureTypeMemoryRequirements2)
	reqs.pNext = unsafe.Pointer(dedicatedReqs)
	dedicatedReqs.sType = C.uint32_t(vk.StructureTypeMemoryDedicatedRequirements)

	C.callImageMemoryRequirements2(d.procs.memoryRequirements2, unsafe.Pointer(d.LogicalDevice), info, reqs)

	dedicated = dedicatedReqs.requiresDedicatedAllocation != 0 || dedicatedReqs.prefersDedicatedAllocation != 0
	return uint64(reqs.size), dedicated, true
}

// bindImageMemory2 binds every imported memory object in one call,
// carrying the per-plane aspect chain for disjoint images.
func (d *Device) bindImageMemory2(image vk.Image, binds []backend.Binding) vk.Result {
	if d.procs.bindMemory2 == nil {
		return vk.ErrorExtensionNotPresent
	}

	count := len(binds)
	infos := (*C.BindImageMemInfo)(C.calloc(C.size_t(count), C.sizeof_BindImageMemInfo))
	planeInfos := (*C.BindImagePlaneMemInfo)(C.calloc(C.size_t(count), C.sizeof_BindImagePlaneMemInfo))
	defer C.free(unsafe.Pointer(infos))
	defer C.free(unsafe.Pointer(planeInfos))

	infoSlice := unsafe.Slice(infos, count)
	planeSlice := unsafe.Slice(planeInfos, count)
	for i, b := range binds {
		infoSlice[i].sType = C.uint32_t(vk.StructureTypeBindImageMemoryInfo)
		infoSlice[i].image = unsafe.Pointer(image)
		infoSlice[i].memory = unsafe.Pointer(b.Memory.(vk.DeviceMemory))
		if b.Disjoint {
			planeSlice[i].sType = C.uint32_t(vk.StructureTypeBindImagePlaneMemoryInfo)
			planeSlice[i].planeAspect = C.uint32_t(memoryPlaneAspects[b.Plane])
			infoSlice[i].pNext = unsafe.Pointer(&planeSlice[i])
		}
	}

	res := C.callBindImageMemory2(d.procs.bindMemory2, unsafe.Pointer(d.LogicalDevice), C.uint32_t(count), infos)
	return vk.Result(res)
}

// externalImageChain builds the dma-buf/modifier pNext chain for
// vkCreateImage in C memory and returns it with its release func. The
// driver walks the chain as raw C structs, so the binding's Go-layout
// structs cannot be linked into it.
func externalImageChain(info backend.ImageInfo) (unsafe.Pointer, func()) {
	var allocs []unsafe.Pointer
	alloc := func(n, size C.size_t) unsafe.Pointer {
		p := C.calloc(n, size)
		allocs = append(allocs, p)
		return p
	}

	ext := (*C.ExtMemoryImageInfo)(alloc(1, C.sizeof_ExtMemoryImageInfo))
	ext.sType = C.uint32_t(vk.StructureTypeExternalMemoryImageCreateInfo)
	ext.handleTypes = C.uint32_t(vk.ExternalMemoryHandleTypeDmaBufBit)

	if info.Tiling == backend.TilingModifier {
		if len(info.PlaneLayouts) > 0 {
			layouts := (*C.SubresLayout)(alloc(C.size_t(len(info.PlaneLayouts)), C.sizeof_SubresLayout))
			ls := unsafe.Slice(layouts, len(info.PlaneLayouts))
			for i, pl := range info.PlaneLayouts {
				ls[i].offset = C.uint64_t(pl.Offset)
				ls[i].rowPitch = C.uint64_t(pl.RowPitch)
			}
			explicit := (*C.ModifierExplicitInfo)(alloc(1, C.sizeof_ModifierExplicitInfo))
			explicit.sType = C.uint32_t(vk.StructureTypeImageDrmFormatModifierExplicitCreateInfo)
			explicit.drmFormatModifier = C.uint64_t(info.Modifier)
			explicit.drmFormatModifierPlaneCount = C.uint32_t(len(info.PlaneLayouts))
			explicit.pPlaneLayouts = layouts
			ext.pNext = unsafe.Pointer(explicit)
		} else {
			modifier := (*C.uint64_t)(alloc(1, C.sizeof_uint64_t))
			*modifier = C.uint64_t(info.Modifier)
			list := (*C.ModifierListInfo)(alloc(1, C.sizeof_ModifierListInfo))
			list.sType = C.uint32_t(vk.StructureTypeImageDrmFormatModifierListCreateInfo)
			list.drmFormatModifierCount = 1
			list.pDrmFormatModifiers = modifier
			ext.pNext = unsafe.Pointer(list)
		}
	}

	return unsafe.Pointer(ext), func() {
		for _, p := range allocs {
			C.free(p)
		}
	}
}
