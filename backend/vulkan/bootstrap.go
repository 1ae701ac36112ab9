package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/core"
)

// Bootstrap creates an instance, picks a physical device that carries the
// import extensions and builds a logical device around its graphics queue.
// For hosts that do not bring their own Vulkan handles; engine hosts
// should wrap theirs with NewDevice instead.
//
// The loader must already be initialized (vk.SetGetInstanceProcAddr plus
// vk.Init), typically through GLFW or the platform loader.
func Bootstrap(appName string, instanceExtensions []string) (*Device, error) {
	instance, err := createInstance(appName, instanceExtensions)
	if err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	physical, queueFamily, err := selectPhysicalDevice(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	logical, err := createLogicalDevice(physical, queueFamily)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(logical, queueFamily, 0, &queue)

	d := &Device{
		Instance:           instance,
		PhysicalDevice:     physical,
		LogicalDevice:      logical,
		GraphicsQueue:      queue,
		GraphicsQueueIndex: queueFamily,
		ownsDevice:         true,
	}
	if err := d.loadProperties(); err != nil {
		d.Destroy()
		return nil, err
	}
	core.LogInfo("bootstrapped Vulkan device, graphics queue family %d", queueFamily)
	return d, nil
}

func createInstance(appName string, instanceExtensions []string) (vk.Instance, error) {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("dmatex"),
	}

	extensions := append([]string{"VK_KHR_external_memory_capabilities"}, instanceExtensions...)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return nil, fmt.Errorf("failed to create Vulkan instance: %s", resultString(res))
	}
	return instance, nil
}

// selectPhysicalDevice walks the physical devices and returns the first
// that exposes every import extension together with its graphics queue
// family. Discrete GPUs win over integrated when both qualify.
func selectPhysicalDevice(instance vk.Instance) (vk.PhysicalDevice, uint32, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, 0, fmt.Errorf("failed to enumerate physical devices: %s", resultString(res))
	}
	if count == 0 {
		return nil, 0, fmt.Errorf("no Vulkan physical devices found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(instance, &count, devices); res != vk.Success {
		return nil, 0, fmt.Errorf("failed to enumerate physical devices: %s", resultString(res))
	}

	var best vk.PhysicalDevice
	var bestQueue uint32
	bestDiscrete := false
	for _, pd := range devices {
		if !hasRequiredExtensions(pd) {
			continue
		}
		family, ok := graphicsQueueFamily(pd)
		if !ok {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		discrete := props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu

		if best == nil || (discrete && !bestDiscrete) {
			best = pd
			bestQueue = family
			bestDiscrete = discrete
			core.LogDebug("candidate device: %s", trimNul(string(props.DeviceName[:])))
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("no physical device supports dma-buf import")
	}
	return best, bestQueue, nil
}

func hasRequiredExtensions(pd vk.PhysicalDevice) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success {
		return false
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); res != vk.Success {
			return false
		}
	}
	available := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		available[trimNul(string(props[i].ExtensionName[:]))] = true
	}
	for _, ext := range RequiredDeviceExtensions() {
		if !available[ext] {
			return false
		}
	}
	return true
}

func graphicsQueueFamily(pd vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func createLogicalDevice(physical vk.PhysicalDevice, queueFamily uint32) (vk.Device, error) {
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	extensions := RequiredDeviceExtensions()
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logical vk.Device
	if res := vk.CreateDevice(physical, &createInfo, nil, &logical); res != vk.Success {
		return nil, fmt.Errorf("failed to create logical device: %s", resultString(res))
	}
	return logical, nil
}
