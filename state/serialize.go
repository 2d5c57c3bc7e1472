package state

import (
	"encoding/base64"
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Document section names, in the canonical order they are emitted and
// parsed. Producers always precede their consumers.
const (
	sectionShaderModules        = "shaderModules"
	sectionSamplers             = "samplers"
	sectionDescriptorSetLayouts = "descriptorSetLayouts"
	sectionPipelineLayouts      = "pipelineLayouts"
	sectionRenderPasses         = "renderPasses"
	sectionComputePipelines     = "computePipelines"
	sectionGraphicsPipelines    = "graphicsPipelines"
)

var sectionOrder = []string{
	sectionShaderModules,
	sectionSamplers,
	sectionDescriptorSetLayouts,
	sectionPipelineLayouts,
	sectionRenderPasses,
	sectionComputePipelines,
	sectionGraphicsPipelines,
}

func formatHash(h Hash) string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Serialize emits the whole recorded graph as a UTF-8 JSON document. The
// walk covers the in-memory lists in index order, so two calls on the same
// recorder state produce byte-identical documents. Cross-references are
// emitted as stored reference integers (index+1, 0 for null) and byte blobs
// as base64 strings paired with an explicit length.
func (r *Recorder) Serialize() ([]byte, error) {
	w := jwriter.NewWriter()
	root := w.Object()

	modules := root.Name(sectionShaderModules).Array()
	for i := range r.shaderModules.entries {
		e := &r.shaderModules.entries[i]
		obj := modules.Object()
		obj.Name("hash").String(formatHash(e.hash))
		obj.Name("flags").Int(int(e.info.Flags))
		obj.Name("codeSize").Int(len(e.info.Code))
		obj.Name("code").String(base64.StdEncoding.EncodeToString(e.info.Code))
		obj.End()
	}
	modules.End()

	samplers := root.Name(sectionSamplers).Array()
	for i := range r.samplers.entries {
		e := &r.samplers.entries[i]
		writeSampler(samplers.Object(), e.hash, &e.info)
	}
	samplers.End()

	setLayouts := root.Name(sectionDescriptorSetLayouts).Array()
	for i := range r.setLayouts.entries {
		e := &r.setLayouts.entries[i]
		writeSetLayout(setLayouts.Object(), e.hash, &e.info)
	}
	setLayouts.End()

	pipelineLayouts := root.Name(sectionPipelineLayouts).Array()
	for i := range r.pipelineLayouts.entries {
		e := &r.pipelineLayouts.entries[i]
		writePipelineLayout(pipelineLayouts.Object(), e.hash, &e.info)
	}
	pipelineLayouts.End()

	renderPasses := root.Name(sectionRenderPasses).Array()
	for i := range r.renderPasses.entries {
		e := &r.renderPasses.entries[i]
		writeRenderPass(renderPasses.Object(), e.hash, &e.info)
	}
	renderPasses.End()

	computePipelines := root.Name(sectionComputePipelines).Array()
	for i := range r.computePipelines.entries {
		e := &r.computePipelines.entries[i]
		writeComputePipeline(computePipelines.Object(), e.hash, &e.info)
	}
	computePipelines.End()

	graphicsPipelines := root.Name(sectionGraphicsPipelines).Array()
	for i := range r.graphicsPipelines.entries {
		e := &r.graphicsPipelines.entries[i]
		writeGraphicsPipeline(graphicsPipelines.Object(), e.hash, &e.info)
	}
	graphicsPipelines.End()

	root.End()
	if err := w.Error(); err != nil {
		return nil, cerrors.Wrap(err, "serializing state document")
	}
	return w.Bytes(), nil
}

func writeSampler(obj jwriter.ObjectState, hash Hash, info *SamplerCreateInfo) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(info.Flags))
	obj.Name("minFilter").Int(int(info.MinFilter))
	obj.Name("magFilter").Int(int(info.MagFilter))
	obj.Name("maxAnisotropy").Float64(float64(info.MaxAnisotropy))
	obj.Name("compareOp").Int(int(info.CompareOp))
	obj.Name("anisotropyEnable").Int(int(boolBit(info.AnisotropyEnable)))
	obj.Name("mipmapMode").Int(int(info.MipmapMode))
	obj.Name("addressModeU").Int(int(info.AddressModeU))
	obj.Name("addressModeV").Int(int(info.AddressModeV))
	obj.Name("addressModeW").Int(int(info.AddressModeW))
	obj.Name("borderColor").Int(int(info.BorderColor))
	obj.Name("unnormalizedCoordinates").Int(int(boolBit(info.UnnormalizedCoordinates)))
	obj.Name("compareEnable").Int(int(boolBit(info.CompareEnable)))
	obj.Name("mipLodBias").Float64(float64(info.MipLodBias))
	obj.Name("minLod").Float64(float64(info.MinLod))
	obj.Name("maxLod").Float64(float64(info.MaxLod))
	obj.End()
}

func writeSetLayout(obj jwriter.ObjectState, hash Hash, layout *recordedSetLayout) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(layout.flags))

	bindings := obj.Name("bindings").Array()
	for i := range layout.bindings {
		b := &layout.bindings[i]
		binding := bindings.Object()
		binding.Name("descriptorType").Int(int(b.descriptorType))
		binding.Name("descriptorCount").Int(int(b.descriptorCount))
		binding.Name("stageFlags").Int(int(b.stageFlags))
		binding.Name("binding").Int(int(b.binding))
		if b.immutableSamplers != nil {
			immutables := binding.Name("immutableSamplers").Array()
			for _, ref := range b.immutableSamplers {
				immutables.Int(int(ref))
			}
			immutables.End()
		}
		binding.End()
	}
	bindings.End()
	obj.End()
}

func writePipelineLayout(obj jwriter.ObjectState, hash Hash, layout *recordedPipelineLayout) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(layout.flags))

	push := obj.Name("pushConstantRanges").Array()
	for i := range layout.pushConstantRanges {
		rng := push.Object()
		rng.Name("stageFlags").Int(int(layout.pushConstantRanges[i].StageFlags))
		rng.Name("size").Int(int(layout.pushConstantRanges[i].Size))
		rng.Name("offset").Int(int(layout.pushConstantRanges[i].Offset))
		rng.End()
	}
	push.End()

	setLayouts := obj.Name("setLayouts").Array()
	for _, ref := range layout.setLayouts {
		setLayouts.Int(int(ref))
	}
	setLayouts.End()
	obj.End()
}

func writeAttachmentReference(obj jwriter.ObjectState, ref *AttachmentReference) {
	obj.Name("attachment").Int(int(ref.Attachment))
	obj.Name("layout").Int(int(ref.Layout))
	obj.End()
}

func writeRenderPass(obj jwriter.ObjectState, hash Hash, info *RenderPassCreateInfo) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(info.Flags))

	deps := obj.Name("dependencies").Array()
	for i := range info.Dependencies {
		d := &info.Dependencies[i]
		dep := deps.Object()
		dep.Name("dependencyFlags").Int(int(d.DependencyFlags))
		dep.Name("dstAccessMask").Int(int(d.DstAccessMask))
		dep.Name("srcAccessMask").Int(int(d.SrcAccessMask))
		dep.Name("dstStageMask").Int(int(d.DstStageMask))
		dep.Name("srcStageMask").Int(int(d.SrcStageMask))
		dep.Name("dstSubpass").Int(int(d.DstSubpass))
		dep.Name("srcSubpass").Int(int(d.SrcSubpass))
		dep.End()
	}
	deps.End()

	attachments := obj.Name("attachments").Array()
	for i := range info.Attachments {
		a := &info.Attachments[i]
		att := attachments.Object()
		att.Name("flags").Int(int(a.Flags))
		att.Name("format").Int(int(a.Format))
		att.Name("finalLayout").Int(int(a.FinalLayout))
		att.Name("initialLayout").Int(int(a.InitialLayout))
		att.Name("loadOp").Int(int(a.LoadOp))
		att.Name("storeOp").Int(int(a.StoreOp))
		att.Name("samples").Int(int(a.Samples))
		att.Name("stencilLoadOp").Int(int(a.StencilLoadOp))
		att.Name("stencilStoreOp").Int(int(a.StencilStoreOp))
		att.End()
	}
	attachments.End()

	subpasses := obj.Name("subpasses").Array()
	for i := range info.Subpasses {
		s := &info.Subpasses[i]
		sub := subpasses.Object()
		sub.Name("flags").Int(int(s.Flags))
		sub.Name("pipelineBindPoint").Int(int(s.PipelineBindPoint))

		preserves := sub.Name("preserveAttachments").Array()
		for _, p := range s.PreserveAttachments {
			preserves.Int(int(p))
		}
		preserves.End()

		inputs := sub.Name("inputAttachments").Array()
		for j := range s.InputAttachments {
			writeAttachmentReference(inputs.Object(), &s.InputAttachments[j])
		}
		inputs.End()

		colors := sub.Name("colorAttachments").Array()
		for j := range s.ColorAttachments {
			writeAttachmentReference(colors.Object(), &s.ColorAttachments[j])
		}
		colors.End()

		if s.ResolveAttachments != nil {
			resolves := sub.Name("resolveAttachments").Array()
			for j := range s.ResolveAttachments {
				writeAttachmentReference(resolves.Object(), &s.ResolveAttachments[j])
			}
			resolves.End()
		}

		if s.DepthStencilAttachment != nil {
			writeAttachmentReference(sub.Name("depthStencilAttachment").Object(), s.DepthStencilAttachment)
		}
		sub.End()
	}
	subpasses.End()
	obj.End()
}

func writeSpecializationInfo(obj jwriter.ObjectState, spec *SpecializationInfo) {
	obj.Name("dataSize").Int(len(spec.Data))
	obj.Name("code").String(base64.StdEncoding.EncodeToString(spec.Data))
	entries := obj.Name("mapEntries").Array()
	for i := range spec.MapEntries {
		e := entries.Object()
		e.Name("offset").Int(int(spec.MapEntries[i].Offset))
		e.Name("size").Int(int(spec.MapEntries[i].Size))
		e.Name("constantID").Int(int(spec.MapEntries[i].ConstantID))
		e.End()
	}
	entries.End()
	obj.End()
}

func writeStage(obj jwriter.ObjectState, stage *recordedStage) {
	obj.Name("flags").Int(int(stage.flags))
	obj.Name("name").String(stage.name)
	obj.Name("module").Int(int(stage.module))
	obj.Name("stage").Int(int(stage.stage))
	if stage.specialization != nil {
		writeSpecializationInfo(obj.Name("specializationInfo").Object(), stage.specialization)
	}
	obj.End()
}

func writeComputePipeline(obj jwriter.ObjectState, hash Hash, pipe *recordedComputePipeline) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(pipe.flags))
	obj.Name("layout").Int(int(pipe.layout))
	obj.Name("basePipelineHandle").Int(int(pipe.basePipeline))
	obj.Name("basePipelineIndex").Int(int(pipe.basePipelineIndex))
	writeStage(obj.Name("stage").Object(), &pipe.stage)
	obj.End()
}

func writeGraphicsPipeline(obj jwriter.ObjectState, hash Hash, pipe *recordedGraphicsPipeline) {
	obj.Name("hash").String(formatHash(hash))
	obj.Name("flags").Int(int(pipe.flags))
	obj.Name("basePipelineHandle").Int(int(pipe.basePipeline))
	obj.Name("basePipelineIndex").Int(int(pipe.basePipelineIndex))
	obj.Name("layout").Int(int(pipe.layout))
	obj.Name("renderPass").Int(int(pipe.renderPass))
	obj.Name("subpass").Int(int(pipe.subpass))

	if tess := pipe.tessellation; tess != nil {
		t := obj.Name("tessellationState").Object()
		t.Name("flags").Int(int(tess.Flags))
		t.Name("patchControlPoints").Int(int(tess.PatchControlPoints))
		t.End()
	}

	if dyn := pipe.dynamicState; dyn != nil {
		d := obj.Name("dynamicState").Object()
		d.Name("flags").Int(int(dyn.Flags))
		states := d.Name("dynamicState").Array()
		for _, s := range dyn.DynamicStates {
			states.Int(int(s))
		}
		states.End()
		d.End()
	}

	if ms := pipe.multisample; ms != nil {
		m := obj.Name("multisampleState").Object()
		m.Name("flags").Int(int(ms.Flags))
		m.Name("rasterizationSamples").Int(int(ms.RasterizationSamples))
		m.Name("sampleShadingEnable").Int(int(boolBit(ms.SampleShadingEnable)))
		m.Name("minSampleShading").Float64(float64(ms.MinSampleShading))
		m.Name("alphaToOneEnable").Int(int(boolBit(ms.AlphaToOneEnable)))
		m.Name("alphaToCoverageEnable").Int(int(boolBit(ms.AlphaToCoverageEnable)))
		if ms.SampleMask != nil {
			mask := m.Name("sampleMask").Array()
			for _, word := range ms.SampleMask {
				mask.Int(int(word))
			}
			mask.End()
		}
		m.End()
	}

	if vi := pipe.vertexInput; vi != nil {
		v := obj.Name("vertexInputState").Object()
		v.Name("flags").Int(int(vi.Flags))

		attribs := v.Name("attributes").Array()
		for i := range vi.Attributes {
			a := attribs.Object()
			a.Name("location").Int(int(vi.Attributes[i].Location))
			a.Name("binding").Int(int(vi.Attributes[i].Binding))
			a.Name("offset").Int(int(vi.Attributes[i].Offset))
			a.Name("format").Int(int(vi.Attributes[i].Format))
			a.End()
		}
		attribs.End()

		bindings := v.Name("bindings").Array()
		for i := range vi.Bindings {
			b := bindings.Object()
			b.Name("binding").Int(int(vi.Bindings[i].Binding))
			b.Name("stride").Int(int(vi.Bindings[i].Stride))
			b.Name("inputRate").Int(int(vi.Bindings[i].InputRate))
			b.End()
		}
		bindings.End()
		v.End()
	}

	if rs := pipe.rasterization; rs != nil {
		rast := obj.Name("rasterizationState").Object()
		rast.Name("flags").Int(int(rs.Flags))
		rast.Name("depthBiasConstantFactor").Float64(float64(rs.DepthBiasConstantFactor))
		rast.Name("depthBiasSlopeFactor").Float64(float64(rs.DepthBiasSlopeFactor))
		rast.Name("depthBiasClamp").Float64(float64(rs.DepthBiasClamp))
		rast.Name("depthBiasEnable").Int(int(boolBit(rs.DepthBiasEnable)))
		rast.Name("depthClampEnable").Int(int(boolBit(rs.DepthClampEnable)))
		rast.Name("polygonMode").Int(int(rs.PolygonMode))
		rast.Name("rasterizerDiscardEnable").Int(int(boolBit(rs.RasterizerDiscardEnable)))
		rast.Name("frontFace").Int(int(rs.FrontFace))
		rast.Name("lineWidth").Float64(float64(rs.LineWidth))
		rast.Name("cullMode").Int(int(rs.CullMode))
		rast.End()
	}

	if ia := pipe.inputAssembly; ia != nil {
		a := obj.Name("inputAssemblyState").Object()
		a.Name("flags").Int(int(ia.Flags))
		a.Name("topology").Int(int(ia.Topology))
		a.Name("primitiveRestartEnable").Int(int(boolBit(ia.PrimitiveRestartEnable)))
		a.End()
	}

	if cb := pipe.colorBlend; cb != nil {
		c := obj.Name("colorBlendState").Object()
		c.Name("flags").Int(int(cb.Flags))
		c.Name("logicOp").Int(int(cb.LogicOp))
		c.Name("logicOpEnable").Int(int(boolBit(cb.LogicOpEnable)))
		constants := c.Name("blendConstants").Array()
		for _, v := range cb.BlendConstants {
			constants.Float64(float64(v))
		}
		constants.End()
		attachments := c.Name("attachments").Array()
		for i := range cb.Attachments {
			a := &cb.Attachments[i]
			att := attachments.Object()
			att.Name("dstAlphaBlendFactor").Int(int(a.DstAlphaBlendFactor))
			att.Name("srcAlphaBlendFactor").Int(int(a.SrcAlphaBlendFactor))
			att.Name("dstColorBlendFactor").Int(int(a.DstColorBlendFactor))
			att.Name("srcColorBlendFactor").Int(int(a.SrcColorBlendFactor))
			att.Name("colorWriteMask").Int(int(a.ColorWriteMask))
			att.Name("alphaBlendOp").Int(int(a.AlphaBlendOp))
			att.Name("colorBlendOp").Int(int(a.ColorBlendOp))
			att.Name("blendEnable").Int(int(boolBit(a.BlendEnable)))
			att.End()
		}
		attachments.End()
		c.End()
	}

	if vp := pipe.viewport; vp != nil {
		v := obj.Name("viewportState").Object()
		v.Name("flags").Int(int(vp.Flags))
		v.Name("viewportCount").Int(int(vp.ViewportCount))
		v.Name("scissorCount").Int(int(vp.ScissorCount))
		if vp.Viewports != nil {
			viewports := v.Name("viewports").Array()
			for i := range vp.Viewports {
				o := viewports.Object()
				o.Name("x").Float64(float64(vp.Viewports[i].X))
				o.Name("y").Float64(float64(vp.Viewports[i].Y))
				o.Name("width").Float64(float64(vp.Viewports[i].Width))
				o.Name("height").Float64(float64(vp.Viewports[i].Height))
				o.Name("minDepth").Float64(float64(vp.Viewports[i].MinDepth))
				o.Name("maxDepth").Float64(float64(vp.Viewports[i].MaxDepth))
				o.End()
			}
			viewports.End()
		}
		if vp.Scissors != nil {
			scissors := v.Name("scissors").Array()
			for i := range vp.Scissors {
				o := scissors.Object()
				o.Name("x").Int(int(vp.Scissors[i].X))
				o.Name("y").Int(int(vp.Scissors[i].Y))
				o.Name("width").Int(int(vp.Scissors[i].Width))
				o.Name("height").Int(int(vp.Scissors[i].Height))
				o.End()
			}
			scissors.End()
		}
		v.End()
	}

	if ds := pipe.depthStencil; ds != nil {
		d := obj.Name("depthStencilState").Object()
		d.Name("flags").Int(int(ds.Flags))
		d.Name("stencilTestEnable").Int(int(boolBit(ds.StencilTestEnable)))
		d.Name("maxDepthBounds").Float64(float64(ds.MaxDepthBounds))
		d.Name("minDepthBounds").Float64(float64(ds.MinDepthBounds))
		d.Name("depthBoundsTestEnable").Int(int(boolBit(ds.DepthBoundsTestEnable)))
		d.Name("depthWriteEnable").Int(int(boolBit(ds.DepthWriteEnable)))
		d.Name("depthTestEnable").Int(int(boolBit(ds.DepthTestEnable)))
		d.Name("depthCompareOp").Int(int(ds.DepthCompareOp))
		writeStencilOpState(d.Name("front").Object(), &ds.Front)
		writeStencilOpState(d.Name("back").Object(), &ds.Back)
		d.End()
	}

	stages := obj.Name("stages").Array()
	for i := range pipe.stages {
		writeStage(stages.Object(), &pipe.stages[i])
	}
	stages.End()
	obj.End()
}

func writeStencilOpState(obj jwriter.ObjectState, s *StencilOpState) {
	obj.Name("compareOp").Int(int(s.CompareOp))
	obj.Name("writeMask").Int(int(s.WriteMask))
	obj.Name("reference").Int(int(s.Reference))
	obj.Name("compareMask").Int(int(s.CompareMask))
	obj.Name("passOp").Int(int(s.PassOp))
	obj.Name("failOp").Int(int(s.FailOp))
	obj.Name("depthFailOp").Int(int(s.DepthFailOp))
	obj.End()
}
