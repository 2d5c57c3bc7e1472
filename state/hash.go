package state

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// The fingerprint of a descriptor covers every field that affects pipeline
// compilation, in a fixed traversal order. Referenced descriptors contribute
// their own recorded hash, never handle bits, so fingerprints are stable
// across processes. Optional sub-states contribute a 0 sentinel when absent.

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// ComputeShaderModuleHash fingerprints the full code blob and flags.
func ComputeShaderModuleHash(info *ShaderModuleCreateInfo) Hash {
	h := NewHasher()
	h.Data(info.Code)
	h.U32(info.Flags)
	return h.Get()
}

// ComputeSamplerHash fingerprints every sampler field in a fixed order.
func ComputeSamplerHash(info *SamplerCreateInfo) Hash {
	h := NewHasher()
	h.U32(info.Flags)
	h.U32(uint32(info.MagFilter))
	h.U32(uint32(info.MinFilter))
	h.U32(uint32(info.MipmapMode))
	h.U32(uint32(info.AddressModeU))
	h.U32(uint32(info.AddressModeV))
	h.U32(uint32(info.AddressModeW))
	h.F32(info.MipLodBias)
	h.U32(boolBit(info.AnisotropyEnable))
	h.F32(info.MaxAnisotropy)
	h.U32(boolBit(info.CompareEnable))
	h.U32(uint32(info.CompareOp))
	h.F32(info.MinLod)
	h.F32(info.MaxLod)
	h.U32(uint32(info.BorderColor))
	h.U32(boolBit(info.UnnormalizedCoordinates))
	return h.Get()
}

// ComputeDescriptorSetLayoutHash fingerprints the layout. Immutable samplers
// contribute their recorded hashes, and only for binding types that actually
// consume them.
func ComputeDescriptorSetLayoutHash(r *Recorder, info *DescriptorSetLayoutCreateInfo) (Hash, error) {
	h := NewHasher()

	h.U32(uint32(len(info.Bindings)))
	h.U32(info.Flags)
	for i := range info.Bindings {
		b := &info.Bindings[i]
		h.U32(b.Binding)
		h.U32(b.DescriptorCount)
		h.U32(uint32(b.DescriptorType))
		h.U32(uint32(b.StageFlags))

		if b.ImmutableSamplers != nil && bindingConsumesSamplers(b.DescriptorType) {
			for _, sampler := range b.ImmutableSamplers {
				if sampler == NullHandle {
					h.U32(0)
					continue
				}
				hash, err := r.HashForSampler(sampler)
				if err != nil {
					return 0, err
				}
				h.U64(uint64(hash))
			}
		}
	}

	return h.Get(), nil
}

func bindingConsumesSamplers(t core1_0.DescriptorType) bool {
	return t == core1_0.DescriptorTypeCombinedImageSampler || t == core1_0.DescriptorTypeSampler
}

// ComputePipelineLayoutHash fingerprints set-layout references (0 for null
// slots), push-constant ranges, and flags.
func ComputePipelineLayoutHash(r *Recorder, info *PipelineLayoutCreateInfo) (Hash, error) {
	h := NewHasher()

	h.U32(uint32(len(info.SetLayouts)))
	for _, layout := range info.SetLayouts {
		if layout == NullHandle {
			h.U32(0)
			continue
		}
		hash, err := r.HashForDescriptorSetLayout(layout)
		if err != nil {
			return 0, err
		}
		h.U64(uint64(hash))
	}

	h.U32(uint32(len(info.PushConstantRanges)))
	for i := range info.PushConstantRanges {
		push := &info.PushConstantRanges[i]
		h.U32(uint32(push.StageFlags))
		h.U32(push.Size)
		h.U32(push.Offset)
	}

	h.U32(info.Flags)

	return h.Get(), nil
}

func hashAttachment(h *Hasher, att *AttachmentDescription) {
	h.U32(att.Flags)
	h.U32(uint32(att.InitialLayout))
	h.U32(uint32(att.FinalLayout))
	h.U32(uint32(att.Format))
	h.U32(uint32(att.LoadOp))
	h.U32(uint32(att.StoreOp))
	h.U32(uint32(att.StencilLoadOp))
	h.U32(uint32(att.StencilStoreOp))
	h.U32(uint32(att.Samples))
}

func hashDependency(h *Hasher, dep *SubpassDependency) {
	h.U32(dep.DependencyFlags)
	h.U32(uint32(dep.DstAccessMask))
	h.U32(uint32(dep.SrcAccessMask))
	h.U32(dep.SrcSubpass)
	h.U32(dep.DstSubpass)
	h.U32(uint32(dep.SrcStageMask))
	h.U32(uint32(dep.DstStageMask))
}

func hashSubpass(h *Hasher, subpass *SubpassDescription) {
	h.U32(subpass.Flags)
	h.U32(uint32(len(subpass.ColorAttachments)))
	h.U32(uint32(len(subpass.InputAttachments)))
	h.U32(uint32(len(subpass.PreserveAttachments)))
	h.U32(uint32(subpass.PipelineBindPoint))

	for _, preserve := range subpass.PreserveAttachments {
		h.U32(preserve)
	}
	for i := range subpass.ColorAttachments {
		h.U32(subpass.ColorAttachments[i].Attachment)
		h.U32(uint32(subpass.ColorAttachments[i].Layout))
	}
	for i := range subpass.InputAttachments {
		h.U32(subpass.InputAttachments[i].Attachment)
		h.U32(uint32(subpass.InputAttachments[i].Layout))
	}
	for i := range subpass.ResolveAttachments {
		h.U32(subpass.ResolveAttachments[i].Attachment)
		h.U32(uint32(subpass.ResolveAttachments[i].Layout))
	}

	if subpass.DepthStencilAttachment != nil {
		h.U32(subpass.DepthStencilAttachment.Attachment)
		h.U32(uint32(subpass.DepthStencilAttachment.Layout))
	} else {
		h.U32(0)
	}
}

// ComputeRenderPassHash fingerprints attachments, dependencies and subpasses
// in declaration order.
func ComputeRenderPassHash(info *RenderPassCreateInfo) Hash {
	h := NewHasher()

	h.U32(uint32(len(info.Attachments)))
	h.U32(uint32(len(info.Dependencies)))
	h.U32(uint32(len(info.Subpasses)))

	for i := range info.Attachments {
		hashAttachment(&h, &info.Attachments[i])
	}
	for i := range info.Dependencies {
		hashDependency(&h, &info.Dependencies[i])
	}
	for i := range info.Subpasses {
		hashSubpass(&h, &info.Subpasses[i])
	}

	return h.Get()
}

func hashSpecializationInfo(h *Hasher, spec *SpecializationInfo) {
	h.Data(spec.Data)
	h.U32(uint32(len(spec.MapEntries)))
	for i := range spec.MapEntries {
		h.U32(spec.MapEntries[i].Offset)
		h.U32(spec.MapEntries[i].Size)
		h.U32(spec.MapEntries[i].ConstantID)
	}
}

// dynamicFlags records which pipeline-state elements are supplied at command
// time. Static values behind an enabled dynamic flag are excluded from the
// fingerprint.
type dynamicFlags struct {
	viewport       bool
	scissor        bool
	lineWidth      bool
	depthBias      bool
	blendConstants bool
	depthBounds    bool
	stencilCompare bool
	stencilWrite   bool
	stencilRef     bool
}

func gatherDynamicFlags(info *DynamicStateInfo) dynamicFlags {
	var d dynamicFlags
	if info == nil {
		return d
	}
	for _, s := range info.DynamicStates {
		switch s {
		case core1_0.DynamicStateViewport:
			d.viewport = true
		case core1_0.DynamicStateScissor:
			d.scissor = true
		case core1_0.DynamicStateLineWidth:
			d.lineWidth = true
		case core1_0.DynamicStateDepthBias:
			d.depthBias = true
		case core1_0.DynamicStateBlendConstants:
			d.blendConstants = true
		case core1_0.DynamicStateDepthBounds:
			d.depthBounds = true
		case core1_0.DynamicStateStencilCompareMask:
			d.stencilCompare = true
		case core1_0.DynamicStateStencilWriteMask:
			d.stencilWrite = true
		case core1_0.DynamicStateStencilReference:
			d.stencilRef = true
		}
	}
	return d
}

func blendFactorUsesConstants(f core1_0.BlendFactor) bool {
	switch f {
	case core1_0.BlendFactorConstantColor,
		core1_0.BlendFactorOneMinusConstantColor,
		core1_0.BlendFactorConstantAlpha,
		core1_0.BlendFactorOneMinusConstantAlpha:
		return true
	}
	return false
}

// ComputeGraphicsPipelineHash fingerprints a graphics pipeline. Referenced
// layout, render pass, base pipeline and shader modules must already be
// registered.
func ComputeGraphicsPipelineHash(r *Recorder, info *GraphicsPipelineCreateInfo) (Hash, error) {
	h := NewHasher()

	h.U32(info.Flags)

	if info.BasePipelineHandle != NullHandle {
		baseHash, err := r.HashForGraphicsPipeline(info.BasePipelineHandle)
		if err != nil {
			return 0, err
		}
		h.U64(uint64(baseHash))
		h.S32(info.BasePipelineIndex)
	}

	layoutHash, err := r.HashForPipelineLayout(info.Layout)
	if err != nil {
		return 0, err
	}
	h.U64(uint64(layoutHash))

	passHash, err := r.HashForRenderPass(info.RenderPass)
	if err != nil {
		return 0, err
	}
	h.U64(uint64(passHash))

	h.U32(info.Subpass)
	h.U32(uint32(len(info.Stages)))

	dynamic := gatherDynamicFlags(info.DynamicState)
	if dyn := info.DynamicState; dyn != nil {
		h.U32(uint32(len(dyn.DynamicStates)))
		h.U32(dyn.Flags)
		for _, s := range dyn.DynamicStates {
			h.U32(uint32(s))
		}
	} else {
		h.U32(0)
	}

	if ds := info.DepthStencil; ds != nil {
		h.U32(ds.Flags)
		h.U32(boolBit(ds.DepthBoundsTestEnable))
		h.U32(uint32(ds.DepthCompareOp))
		h.U32(boolBit(ds.DepthTestEnable))
		h.U32(boolBit(ds.DepthWriteEnable))
		h.U32(uint32(ds.Front.CompareOp))
		h.U32(uint32(ds.Front.DepthFailOp))
		h.U32(uint32(ds.Front.FailOp))
		h.U32(uint32(ds.Front.PassOp))
		h.U32(uint32(ds.Back.CompareOp))
		h.U32(uint32(ds.Back.DepthFailOp))
		h.U32(uint32(ds.Back.FailOp))
		h.U32(uint32(ds.Back.PassOp))
		h.U32(boolBit(ds.StencilTestEnable))

		if !dynamic.depthBounds && ds.DepthBoundsTestEnable {
			h.F32(ds.MinDepthBounds)
			h.F32(ds.MaxDepthBounds)
		}

		if ds.StencilTestEnable {
			if !dynamic.stencilCompare {
				h.U32(ds.Front.CompareMask)
				h.U32(ds.Back.CompareMask)
			}
			if !dynamic.stencilRef {
				h.U32(ds.Front.Reference)
				h.U32(ds.Back.Reference)
			}
			if !dynamic.stencilWrite {
				h.U32(ds.Front.WriteMask)
				h.U32(ds.Back.WriteMask)
			}
		}
	} else {
		h.U32(0)
	}

	if ia := info.InputAssembly; ia != nil {
		h.U32(ia.Flags)
		h.U32(boolBit(ia.PrimitiveRestartEnable))
		h.U32(uint32(ia.Topology))
	} else {
		h.U32(0)
	}

	if rs := info.Rasterization; rs != nil {
		h.U32(rs.Flags)
		h.U32(uint32(rs.CullMode))
		h.U32(boolBit(rs.DepthClampEnable))
		h.U32(uint32(rs.FrontFace))
		h.U32(boolBit(rs.RasterizerDiscardEnable))
		h.U32(uint32(rs.PolygonMode))
		h.U32(boolBit(rs.DepthBiasEnable))

		if rs.DepthBiasEnable && !dynamic.depthBias {
			h.F32(rs.DepthBiasClamp)
			h.F32(rs.DepthBiasSlopeFactor)
			h.F32(rs.DepthBiasConstantFactor)
		}
		if !dynamic.lineWidth {
			h.F32(rs.LineWidth)
		}
	} else {
		h.U32(0)
	}

	if ms := info.Multisample; ms != nil {
		h.U32(ms.Flags)
		h.U32(boolBit(ms.AlphaToCoverageEnable))
		h.U32(boolBit(ms.AlphaToOneEnable))
		h.F32(ms.MinSampleShading)
		h.U32(uint32(ms.RasterizationSamples))
		h.U32(boolBit(ms.SampleShadingEnable))
		if ms.SampleMask != nil {
			for _, word := range ms.SampleMask {
				h.U32(word)
			}
		} else {
			h.U32(0)
		}
	} else {
		h.U32(0)
	}

	if vp := info.Viewport; vp != nil {
		h.U32(vp.Flags)
		h.U32(vp.ScissorCount)
		h.U32(vp.ViewportCount)
		if !dynamic.scissor {
			for i := range vp.Scissors {
				h.S32(vp.Scissors[i].X)
				h.S32(vp.Scissors[i].Y)
				h.U32(vp.Scissors[i].Width)
				h.U32(vp.Scissors[i].Height)
			}
		}
		if !dynamic.viewport {
			for i := range vp.Viewports {
				h.F32(vp.Viewports[i].X)
				h.F32(vp.Viewports[i].Y)
				h.F32(vp.Viewports[i].Width)
				h.F32(vp.Viewports[i].Height)
				h.F32(vp.Viewports[i].MinDepth)
				h.F32(vp.Viewports[i].MaxDepth)
			}
		}
	} else {
		h.U32(0)
	}

	if vi := info.VertexInput; vi != nil {
		h.U32(vi.Flags)
		h.U32(uint32(len(vi.Attributes)))
		h.U32(uint32(len(vi.Bindings)))
		for i := range vi.Attributes {
			h.U32(vi.Attributes[i].Offset)
			h.U32(vi.Attributes[i].Binding)
			h.U32(uint32(vi.Attributes[i].Format))
			h.U32(vi.Attributes[i].Location)
		}
		for i := range vi.Bindings {
			h.U32(vi.Bindings[i].Binding)
			h.U32(uint32(vi.Bindings[i].InputRate))
			h.U32(vi.Bindings[i].Stride)
		}
	} else {
		h.U32(0)
	}

	if cb := info.ColorBlend; cb != nil {
		h.U32(cb.Flags)
		h.U32(uint32(len(cb.Attachments)))
		h.U32(boolBit(cb.LogicOpEnable))
		h.U32(uint32(cb.LogicOp))

		needBlendConstants := false
		for i := range cb.Attachments {
			att := &cb.Attachments[i]
			h.U32(boolBit(att.BlendEnable))
			if att.BlendEnable {
				h.U32(uint32(att.ColorWriteMask))
				h.U32(uint32(att.AlphaBlendOp))
				h.U32(uint32(att.ColorBlendOp))
				h.U32(uint32(att.DstAlphaBlendFactor))
				h.U32(uint32(att.SrcAlphaBlendFactor))
				h.U32(uint32(att.DstColorBlendFactor))
				h.U32(uint32(att.SrcColorBlendFactor))

				if blendFactorUsesConstants(att.SrcColorBlendFactor) ||
					blendFactorUsesConstants(att.DstColorBlendFactor) ||
					blendFactorUsesConstants(att.SrcAlphaBlendFactor) ||
					blendFactorUsesConstants(att.DstAlphaBlendFactor) {
					needBlendConstants = true
				}
			} else {
				h.U32(0)
			}
		}

		if needBlendConstants && !dynamic.blendConstants {
			for _, c := range cb.BlendConstants {
				h.F32(c)
			}
		}
	} else {
		h.U32(0)
	}

	if tess := info.Tessellation; tess != nil {
		h.U32(tess.Flags)
		h.U32(tess.PatchControlPoints)
	} else {
		h.U32(0)
	}

	for i := range info.Stages {
		stage := &info.Stages[i]
		h.U32(stage.Flags)
		h.String(stage.Name)
		h.U32(uint32(stage.Stage))
		moduleHash, err := r.HashForShaderModule(stage.Module)
		if err != nil {
			return 0, err
		}
		h.U64(uint64(moduleHash))
		if stage.SpecializationInfo != nil {
			hashSpecializationInfo(&h, stage.SpecializationInfo)
		} else {
			h.U32(0)
		}
	}

	return h.Get(), nil
}

// ComputeComputePipelineHash fingerprints a compute pipeline. Referenced
// layout, base pipeline and shader module must already be registered.
func ComputeComputePipelineHash(r *Recorder, info *ComputePipelineCreateInfo) (Hash, error) {
	h := NewHasher()

	layoutHash, err := r.HashForPipelineLayout(info.Layout)
	if err != nil {
		return 0, err
	}
	h.U64(uint64(layoutHash))
	h.U32(info.Flags)

	if info.BasePipelineHandle != NullHandle {
		baseHash, err := r.HashForComputePipeline(info.BasePipelineHandle)
		if err != nil {
			return 0, err
		}
		h.U64(uint64(baseHash))
		h.S32(info.BasePipelineIndex)
	} else {
		h.U32(0)
	}

	moduleHash, err := r.HashForShaderModule(info.Stage.Module)
	if err != nil {
		return 0, err
	}
	h.U64(uint64(moduleHash))
	h.String(info.Stage.Name)
	h.U32(info.Stage.Flags)
	h.U32(uint32(info.Stage.Stage))

	if info.Stage.SpecializationInfo != nil {
		hashSpecializationInfo(&h, info.Stage.SpecializationInfo)
	} else {
		h.U32(0)
	}

	return h.Get(), nil
}
