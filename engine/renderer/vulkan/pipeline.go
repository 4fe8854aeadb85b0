package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/gpu"
)

// maxBindlessViews bounds the shared view array layout. Heaps may be
// created smaller but never larger.
const maxBindlessViews = 1024

// pushConstantBytes carries the heap indices bound through descriptor
// tables, one uint32 per table slot.
const pushConstantBytes = 16

const uniformDescriptorRange = 256

func createSharedLayouts(context *VulkanContext) error {
	device := context.Device.LogicalDevice
	allStages := vk.ShaderStageFlags(vk.ShaderStageAllGraphics) | vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	context.PushStages = allStages

	heapInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: maxBindlessViews,
			StageFlags:      allStages,
		}},
	}
	if res := vk.CreateDescriptorSetLayout(device, &heapInfo, context.Allocator, &context.HeapLayout); res != vk.Success {
		err := fmt.Errorf("failed to create bindless view layout")
		core.LogError(err.Error())
		return err
	}

	uniformInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      allStages,
		}},
	}
	if res := vk.CreateDescriptorSetLayout(device, &uniformInfo, context.Allocator, &context.UniformLayout); res != vk.Success {
		err := fmt.Errorf("failed to create uniform buffer layout")
		core.LogError(err.Error())
		return err
	}

	setLayouts := []vk.DescriptorSetLayout{context.HeapLayout, context.UniformLayout}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: allStages,
			Offset:     0,
			Size:       pushConstantBytes,
		}},
	}
	if res := vk.CreatePipelineLayout(device, &layoutInfo, context.Allocator, &context.PipelineLayout); res != vk.Success {
		err := fmt.Errorf("failed to create shared pipeline layout")
		core.LogError(err.Error())
		return err
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       64,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 64,
		}},
	}
	if res := vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &context.UniformPool); res != vk.Success {
		err := fmt.Errorf("failed to create uniform descriptor pool")
		core.LogError(err.Error())
		return err
	}

	context.passCache = make(map[renderPassKey]vk.RenderPass)
	context.framebufferCache = make(map[framebufferKey]vk.Framebuffer)
	return nil
}

func destroySharedLayouts(context *VulkanContext) {
	device := context.Device.LogicalDevice
	for _, framebuffer := range context.framebufferCache {
		vk.DestroyFramebuffer(device, framebuffer, context.Allocator)
	}
	context.framebufferCache = nil
	for _, pass := range context.passCache {
		vk.DestroyRenderPass(device, pass, context.Allocator)
	}
	context.passCache = nil
	if context.UniformPool != nil {
		vk.DestroyDescriptorPool(device, context.UniformPool, context.Allocator)
		context.UniformPool = nil
	}
	if context.PipelineLayout != nil {
		vk.DestroyPipelineLayout(device, context.PipelineLayout, context.Allocator)
		context.PipelineLayout = nil
	}
	if context.UniformLayout != nil {
		vk.DestroyDescriptorSetLayout(device, context.UniformLayout, context.Allocator)
		context.UniformLayout = nil
	}
	if context.HeapLayout != nil {
		vk.DestroyDescriptorSetLayout(device, context.HeapLayout, context.Allocator)
		context.HeapLayout = nil
	}
}

// getRenderPass returns a cached render pass for the attachment
// combination. Layouts are kept stable across the pass, transitions
// happen through explicit barriers between passes.
func getRenderPass(context *VulkanContext, key renderPassKey) (vk.RenderPass, error) {
	if pass, ok := context.passCache[key]; ok {
		return pass, nil
	}

	var attachments []vk.AttachmentDescription
	subpass := vk.SubpassDescription{PipelineBindPoint: vk.PipelineBindPointGraphics}

	if key.ColorFormat != vk.FormatUndefined {
		loadOp := vk.AttachmentLoadOpLoad
		initialLayout := vk.ImageLayoutColorAttachmentOptimal
		if key.ClearColor {
			loadOp = vk.AttachmentLoadOpClear
			initialLayout = vk.ImageLayoutUndefined
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.ColorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		subpass.ColorAttachmentCount = 1
		subpass.PColorAttachments = []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
	}

	if key.DepthFormat != vk.FormatUndefined {
		layout := vk.ImageLayoutDepthStencilAttachmentOptimal
		if key.DepthReadOnly {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		loadOp := vk.AttachmentLoadOpLoad
		initialLayout := layout
		if key.ClearDepth {
			loadOp = vk.AttachmentLoadOpClear
			initialLayout = vk.ImageLayoutUndefined
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.DepthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    layout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     layout,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &createInfo, context.Allocator, &pass); res != vk.Success {
		err := fmt.Errorf("failed to create render pass")
		core.LogError(err.Error())
		return nil, err
	}
	context.passCache[key] = pass
	return pass, nil
}

func getFramebuffer(context *VulkanContext, pass vk.RenderPass, key framebufferKey) (vk.Framebuffer, error) {
	if framebuffer, ok := context.framebufferCache[key]; ok {
		return framebuffer, nil
	}
	var views []vk.ImageView
	if key.ColorView != nil {
		views = append(views, key.ColorView)
	}
	if key.DepthView != nil {
		views = append(views, key.DepthView)
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           key.Width,
		Height:          key.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &framebuffer); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer")
		core.LogError(err.Error())
		return nil, err
	}
	context.framebufferCache[key] = framebuffer
	return framebuffer, nil
}

// invalidateFramebuffers drops cached framebuffers, called when any
// attachment view is destroyed.
func invalidateFramebuffers(context *VulkanContext) {
	for key, framebuffer := range context.framebufferCache {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, framebuffer, context.Allocator)
		delete(context.framebufferCache, key)
	}
}

func newShaderModule(context *VulkanContext, code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader blob of %d bytes is not valid SPIR-V", len(code))
		core.LogError(err.Error())
		return nil, err
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module); res != vk.Success {
		err := fmt.Errorf("failed to create shader module")
		core.LogError(err.Error())
		return nil, err
	}
	return module, nil
}

type pipelineKind int

const (
	pipelineGraphics pipelineKind = iota
	pipelineCompute
)

type VulkanPipeline struct {
	context *VulkanContext
	kind    pipelineKind
	Handle  vk.Pipeline
}

func NewVulkanGraphicsPipeline(context *VulkanContext, desc gpu.GraphicsPipelineDesc) (*VulkanPipeline, error) {
	vs, err := newShaderModule(context, desc.VS)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(context.Device.LogicalDevice, vs, context.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vs,
		PName:  "main\x00",
	}}
	if !desc.DepthOnly {
		ps, err := newShaderModule(context, desc.PS)
		if err != nil {
			return nil, err
		}
		defer vk.DestroyShaderModule(context.Device.LogicalDevice, ps, context.Allocator)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: ps,
			PName:  "main\x00",
		})
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, attribute := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   VulkanFormat(attribute.Format),
			Offset:   attribute.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		FrontFace:   vk.FrontFaceCounterClockwise,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
	}
	if desc.AlphaBlend {
		// Overlay quads are authored in either winding.
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeNone)
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}

	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if desc.AlphaBlend {
		blendAttachment.BlendEnable = vk.True
		blendAttachment.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.ColorBlendOp = vk.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
		blendAttachment.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blendAttachment.AlphaBlendOp = vk.BlendOpAdd
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType: vk.StructureTypePipelineColorBlendStateCreateInfo,
	}
	if !desc.DepthOnly {
		colorBlend.AttachmentCount = 1
		colorBlend.PAttachments = []vk.PipelineColorBlendAttachmentState{blendAttachment}
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	passKey := renderPassKey{
		ColorFormat:   VulkanFormat(desc.ColorFormat),
		DepthFormat:   VulkanFormat(desc.DepthFormat),
		DepthReadOnly: desc.DepthTest && !desc.DepthWrite,
	}
	if desc.DepthOnly {
		passKey.ColorFormat = vk.FormatUndefined
	}
	pass, err := getRenderPass(context, passKey)
	if err != nil {
		return nil, err
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              context.PipelineLayout,
		RenderPass:          pass,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	result := vk.CreateGraphicsPipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, context.Allocator, pipelines)
	if !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to create graphics pipeline")
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Graphics pipeline created")
	return &VulkanPipeline{context: context, kind: pipelineGraphics, Handle: pipelines[0]}, nil
}

func NewVulkanComputePipeline(context *VulkanContext, desc gpu.ComputePipelineDesc) (*VulkanPipeline, error) {
	cs, err := newShaderModule(context, desc.CS)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(context.Device.LogicalDevice, cs, context.Allocator)

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: cs,
			PName:  "main\x00",
		},
		Layout:            context.PipelineLayout,
		BasePipelineIndex: -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	result := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pipelines)
	if !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to create compute pipeline")
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Compute pipeline created")
	return &VulkanPipeline{context: context, kind: pipelineCompute, Handle: pipelines[0]}, nil
}

func (p *VulkanPipeline) bindPoint() vk.PipelineBindPoint {
	if p.kind == pipelineCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func (p *VulkanPipeline) Destroy() {
	if p.Handle != nil {
		vk.DestroyPipeline(p.context.Device.LogicalDevice, p.Handle, p.context.Allocator)
		p.Handle = nil
	}
}
