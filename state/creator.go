package state

// Creator is the driver-facing collaborator the replayer feeds. For every
// descriptor kind the replayer announces the section size once, then
// enqueues each element in index order, then synchronizes with WaitEnqueue
// before moving to the next section.
//
// EnqueueCreate* instructs the creator to produce the object and eventually
// write its handle into *out. The handle must be written no later than the
// return of the following WaitEnqueue. Create-info pointers stay valid for
// the lifetime of the replayer that produced them.
type Creator interface {
	SetNumShaderModules(count int)
	EnqueueCreateShaderModule(hash Hash, index int, info *ShaderModuleCreateInfo, out *Handle) error

	SetNumSamplers(count int)
	EnqueueCreateSampler(hash Hash, index int, info *SamplerCreateInfo, out *Handle) error

	SetNumDescriptorSetLayouts(count int)
	EnqueueCreateDescriptorSetLayout(hash Hash, index int, info *DescriptorSetLayoutCreateInfo, out *Handle) error

	SetNumPipelineLayouts(count int)
	EnqueueCreatePipelineLayout(hash Hash, index int, info *PipelineLayoutCreateInfo, out *Handle) error

	SetNumRenderPasses(count int)
	EnqueueCreateRenderPass(hash Hash, index int, info *RenderPassCreateInfo, out *Handle) error

	SetNumComputePipelines(count int)
	EnqueueCreateComputePipeline(hash Hash, index int, info *ComputePipelineCreateInfo, out *Handle) error

	SetNumGraphicsPipelines(count int)
	EnqueueCreateGraphicsPipeline(hash Hash, index int, info *GraphicsPipelineCreateInfo, out *Handle) error

	WaitEnqueue()
}
