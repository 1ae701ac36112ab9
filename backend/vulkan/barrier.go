package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// VK_QUEUE_FAMILY_EXTERNAL, the ~0U-1 sentinel for cross-process queue
// ownership transfers.
const queueFamilyExternal = ^uint32(0) - 1

const barrierFenceTimeout = uint64(5 * time.Second)

// AcquireOwnership transfers the image from the external producer to the
// graphics queue and lays it out for the given usage. The submission is
// fenced; when this returns nil the image is safe to read or render to.
func (d *Device) AcquireOwnership(img backend.Image, usage backend.Usage) error {
	return d.ownershipBarrier(img, barrierTransition{
		srcQueueFamily: queueFamilyExternal,
		dstQueueFamily: d.GraphicsQueueIndex,
		oldLayout:      vk.ImageLayoutUndefined,
		newLayout:      targetLayout(usage),
		srcAccess:      0,
		dstAccess:      targetAccess(usage),
		srcStage:       vk.PipelineStageTopOfPipeBit,
		dstStage:       targetStage(usage),
	})
}

// ReleaseOwnership hands the image back to the external side once the
// graphics queue is done with it.
func (d *Device) ReleaseOwnership(img backend.Image, usage backend.Usage) error {
	return d.ownershipBarrier(img, barrierTransition{
		srcQueueFamily: d.GraphicsQueueIndex,
		dstQueueFamily: queueFamilyExternal,
		oldLayout:      targetLayout(usage),
		newLayout:      vk.ImageLayoutGeneral,
		srcAccess:      targetAccess(usage),
		dstAccess:      0,
		srcStage:       targetStage(usage),
		dstStage:       vk.PipelineStageBottomOfPipeBit,
	})
}

type barrierTransition struct {
	srcQueueFamily uint32
	dstQueueFamily uint32
	oldLayout      vk.ImageLayout
	newLayout      vk.ImageLayout
	srcAccess      vk.AccessFlagBits
	dstAccess      vk.AccessFlagBits
	srcStage       vk.PipelineStageFlagBits
	dstStage       vk.PipelineStageFlagBits
}

// ownershipBarrier records the queue-family transfer on a one-time command
// buffer, submits it and waits on a fence. Slow but rare: once per
// producer/consumer handover, not per frame.
func (d *Device) ownershipBarrier(img backend.Image, tr barrierTransition) error {
	pool, err := d.ensureBarrierPool()
	if err != nil {
		return err
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.LogicalDevice, &allocInfo, cmds); res != vk.Success {
		return deviceErr("vkAllocateCommandBuffers", res)
	}
	cmd := cmds[0]
	defer vk.FreeCommandBuffers(d.LogicalDevice, pool, 1, cmds)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return deviceErr("vkBeginCommandBuffer", res)
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(tr.srcAccess),
		DstAccessMask:       vk.AccessFlags(tr.dstAccess),
		OldLayout:           tr.oldLayout,
		NewLayout:           tr.newLayout,
		SrcQueueFamilyIndex: tr.srcQueueFamily,
		DstQueueFamilyIndex: tr.dstQueueFamily,
		Image:               img.(vk.Image),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(tr.srcStage), vk.PipelineStageFlags(tr.dstStage), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return deviceErr("vkEndCommandBuffer", res)
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.LogicalDevice, &fenceInfo, d.Allocator, &fence); res != vk.Success {
		return deviceErr("vkCreateFence", res)
	}
	defer vk.DestroyFence(d.LogicalDevice, fence, d.Allocator)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}
	if res := vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence); res != vk.Success {
		return deviceErr("vkQueueSubmit", res)
	}
	if res := vk.WaitForFences(d.LogicalDevice, 1, []vk.Fence{fence}, vk.True, barrierFenceTimeout); res != vk.Success {
		return deviceErr("vkWaitForFences", res)
	}

	core.LogDebug("ownership barrier %d -> %d done", tr.srcQueueFamily, tr.dstQueueFamily)
	return nil
}

func (d *Device) ensureBarrierPool() (vk.CommandPool, error) {
	if d.barrierPool != nil {
		return d.barrierPool, nil
	}
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: d.GraphicsQueueIndex,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.LogicalDevice, &poolInfo, d.Allocator, &pool); res != vk.Success {
		return nil, deviceErr("vkCreateCommandPool", res)
	}
	d.barrierPool = pool
	return pool, nil
}

func targetLayout(usage backend.Usage) vk.ImageLayout {
	if usage&backend.UsageRenderTarget != 0 {
		return vk.ImageLayoutColorAttachmentOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func targetAccess(usage backend.Usage) vk.AccessFlagBits {
	if usage&backend.UsageRenderTarget != 0 {
		return vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
	}
	return vk.AccessShaderReadBit
}

func targetStage(usage backend.Usage) vk.PipelineStageFlagBits {
	if usage&backend.UsageRenderTarget != 0 {
		return vk.PipelineStageColorAttachmentOutputBit
	}
	return vk.PipelineStageFragmentShaderBit
}
