// Package vulkan is the one place that talks to the driver. It implements
// backend.Device on top of an existing Vulkan instance/device pair using
// the external-memory and DRM-format-modifier extensions.
package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// RequiredDeviceExtensions are the device extensions every import path
// needs. Hosts creating their own logical device must enable them;
// NewDevice verifies nothing but SelectPhysicalDevice filters on them.
func RequiredDeviceExtensions() []string {
	return []string{
		"VK_EXT_image_drm_format_modifier",
		"VK_EXT_external_memory_dma_buf",
		"VK_KHR_external_memory_fd",
		"VK_KHR_external_memory",
	}
}

// Device wraps the host's Vulkan handles. There is no hidden global
// context: every importer call goes through an explicit *Device.
type Device struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Allocator      *vk.AllocationCallbacks

	GraphicsQueue      vk.Queue
	GraphicsQueueIndex uint32

	// ownsDevice marks instance/device created by Bootstrap, which
	// Destroy must tear down. Host-supplied handles are left alone.
	ownsDevice bool

	extensions map[string]bool
	memory     vk.PhysicalDeviceMemoryProperties

	// 1.1 entry points the binding does not wrap, resolved through the
	// loader. See proc.go.
	procs procTable

	// Transient pool for ownership-barrier submissions, created on first
	// use.
	barrierPool vk.CommandPool
}

// NewDevice wraps handles owned by the host. The host guarantees the
// logical device was created with RequiredDeviceExtensions and stays
// alive for the lifetime of the returned Device.
func NewDevice(instance vk.Instance, physical vk.PhysicalDevice, logical vk.Device, queue vk.Queue, queueFamily uint32) (*Device, error) {
	d := &Device{
		Instance:           instance,
		PhysicalDevice:     physical,
		LogicalDevice:      logical,
		GraphicsQueue:      queue,
		GraphicsQueueIndex: queueFamily,
	}
	if err := d.loadProperties(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) loadProperties() error {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate device extensions: %s", resultString(res))
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, props); res != vk.Success {
			return fmt.Errorf("failed to enumerate device extensions: %s", resultString(res))
		}
	}
	d.extensions = make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		name := string(props[i].ExtensionName[:])
		d.extensions[trimNul(name)] = true
	}

	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.memory)
	d.memory.Deref()

	d.resolveProcs()
	return nil
}

// Destroy releases the logical device and instance when this package
// created them (Bootstrap); host-owned handles are untouched.
func (d *Device) Destroy() {
	if d.barrierPool != nil && d.LogicalDevice != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.barrierPool, d.Allocator)
		d.barrierPool = nil
	}
	if !d.ownsDevice {
		return
	}
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, d.Allocator)
		d.LogicalDevice = nil
	}
	if d.Instance != nil {
		vk.DestroyInstance(d.Instance, d.Allocator)
		d.Instance = nil
	}
}

// HandleTypes reports dma-buf support when the whole extension set is
// present and the 1.1 entry points resolved. An empty result makes the
// negotiator return NotSupported.
func (d *Device) HandleTypes() []backend.HandleType {
	for _, ext := range RequiredDeviceExtensions() {
		if !d.extensions[ext] {
			core.LogDebug("device misses extension %s, no import handle types", ext)
			return nil
		}
	}
	if !d.procs.complete() {
		core.LogDebug("device misses Vulkan 1.1 query entry points, no import handle types")
		return nil
	}
	return []backend.HandleType{backend.HandleDmaBuf}
}

// ImportMemoryTypeIndex picks the first memory type that is not
// lazily-allocated or protected; those heaps cannot back an external
// import.
func (d *Device) ImportMemoryTypeIndex() (uint32, bool) {
	excluded := vk.MemoryPropertyFlags(vk.MemoryPropertyLazilyAllocatedBit | vk.MemoryPropertyProtectedBit)
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if d.memory.MemoryTypes[i].PropertyFlags&excluded == 0 {
			return i, true
		}
	}
	core.LogWarn("no memory type usable for external import")
	return 0, false
}

// deviceErr converts a vk.Result into the core taxonomy, keeping device
// loss distinguishable from everything else.
func deviceErr(op string, res vk.Result) error {
	if res == vk.ErrorDeviceLost {
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	}
	return fmt.Errorf("%s failed: %s", op, resultString(res))
}

func trimNul(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
