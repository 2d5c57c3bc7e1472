package state

import (
	"encoding/base64"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/aeikum/fossilize/scratch"
)

// Replayer reconstructs descriptors from a serialized state document and
// drives a Creator in dependency order: shader modules and samplers first,
// then set layouts, then pipeline layouts and render passes, then pipelines.
// Materialized create-infos live in an arena owned by the replayer and stay
// valid until it is dropped.
//
// The parser is streaming, so the document must present its sections in the
// canonical serialize order; any section may be absent.
type Replayer struct {
	alloc scratch.Allocator

	shaderModules     []Handle
	samplers          []Handle
	setLayouts        []Handle
	pipelineLayouts   []Handle
	renderPasses      []Handle
	computePipelines  []Handle
	graphicsPipelines []Handle
}

func NewReplayer() *Replayer {
	return &Replayer{}
}

func parseError(format string, args ...interface{}) error {
	return cerrors.Wrapf(ErrParse, format, args...)
}

func parseHashString(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, parseError("bad hash %q", s)
	}
	return Hash(v), nil
}

// resolveRef turns a stored reference into a handle created by an earlier
// section. 0 resolves to the null handle; the valid stored range is
// [1, len(prior)].
func resolveRef(prior []Handle, ref Ref, what string) (Handle, error) {
	if ref.IsNull() {
		return NullHandle, nil
	}
	if ref.Index() >= len(prior) {
		return NullHandle, cerrors.Wrapf(ErrIndexOutOfRange, "%s reference %d exceeds %d entries", what, uint32(ref), len(prior))
	}
	return prior[ref.Index()], nil
}

// Parse loads a state document and replays every section through the
// creator. On failure no further sections are enqueued; sections already
// completed stay visible to the creator.
func (r *Replayer) Parse(creator Creator, data []byte) error {
	reader := jreader.NewReader(data)
	obj := reader.Object()

	next := 0
	for obj.Next() {
		name := string(obj.Name())
		pos := -1
		for i, s := range sectionOrder {
			if s == name {
				pos = i
				break
			}
		}
		if pos < 0 {
			if err := reader.SkipValue(); err != nil {
				break
			}
			continue
		}
		if pos < next {
			return parseError("section %q out of canonical order", name)
		}
		for ; next < pos; next++ {
			setNumForSection(creator, next, 0)
		}
		if err := r.parseSection(creator, &reader, pos); err != nil {
			return err
		}
		next = pos + 1
	}

	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	for ; next < len(sectionOrder); next++ {
		setNumForSection(creator, next, 0)
	}
	return nil
}

func setNumForSection(creator Creator, pos, count int) {
	switch sectionOrder[pos] {
	case sectionShaderModules:
		creator.SetNumShaderModules(count)
	case sectionSamplers:
		creator.SetNumSamplers(count)
	case sectionDescriptorSetLayouts:
		creator.SetNumDescriptorSetLayouts(count)
	case sectionPipelineLayouts:
		creator.SetNumPipelineLayouts(count)
	case sectionRenderPasses:
		creator.SetNumRenderPasses(count)
	case sectionComputePipelines:
		creator.SetNumComputePipelines(count)
	case sectionGraphicsPipelines:
		creator.SetNumGraphicsPipelines(count)
	}
}

func (r *Replayer) parseSection(creator Creator, reader *jreader.Reader, pos int) error {
	switch sectionOrder[pos] {
	case sectionShaderModules:
		return r.parseShaderModules(creator, reader)
	case sectionSamplers:
		return r.parseSamplers(creator, reader)
	case sectionDescriptorSetLayouts:
		return r.parseDescriptorSetLayouts(creator, reader)
	case sectionPipelineLayouts:
		return r.parsePipelineLayouts(creator, reader)
	case sectionRenderPasses:
		return r.parseRenderPasses(creator, reader)
	case sectionComputePipelines:
		return r.parseComputePipelines(creator, reader)
	case sectionGraphicsPipelines:
		return r.parseGraphicsPipelines(creator, reader)
	}
	return nil
}

type parsedEntry[T any] struct {
	hash Hash
	info T
}

func (r *Replayer) parseShaderModules(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[ShaderModuleCreateInfo]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[ShaderModuleCreateInfo]
		codeSize := -1
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.Flags = uint32(reader.Int())
			case "codeSize":
				codeSize = reader.Int()
			case "code":
				code, err := base64.StdEncoding.DecodeString(reader.String())
				if err != nil {
					return parseError("bad shader code encoding: %v", err)
				}
				e.info.Code = code
			default:
				reader.SkipValue()
			}
		}
		if codeSize >= 0 && codeSize != len(e.info.Code) {
			return parseError("codeSize %d does not match %d decoded bytes", codeSize, len(e.info.Code))
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumShaderModules(len(entries))
	r.shaderModules = make([]Handle, len(entries))
	for i := range entries {
		info := scratch.AllocOne[ShaderModuleCreateInfo](&r.alloc)
		if info == nil {
			return ErrAllocationFailed
		}
		info.Flags = entries[i].info.Flags
		var err error
		if info.Code, err = arenaSlice(&r.alloc, entries[i].info.Code); err != nil {
			return err
		}
		if err := creator.EnqueueCreateShaderModule(entries[i].hash, i, info, &r.shaderModules[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parseSamplers(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[SamplerCreateInfo]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[SamplerCreateInfo]
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.Flags = uint32(reader.Int())
			case "minFilter":
				e.info.MinFilter = core1_0.Filter(reader.Int())
			case "magFilter":
				e.info.MagFilter = core1_0.Filter(reader.Int())
			case "maxAnisotropy":
				e.info.MaxAnisotropy = float32(reader.Float64())
			case "compareOp":
				e.info.CompareOp = core1_0.CompareOp(reader.Int())
			case "anisotropyEnable":
				e.info.AnisotropyEnable = reader.Int() != 0
			case "mipmapMode":
				e.info.MipmapMode = core1_0.SamplerMipmapMode(reader.Int())
			case "addressModeU":
				e.info.AddressModeU = core1_0.SamplerAddressMode(reader.Int())
			case "addressModeV":
				e.info.AddressModeV = core1_0.SamplerAddressMode(reader.Int())
			case "addressModeW":
				e.info.AddressModeW = core1_0.SamplerAddressMode(reader.Int())
			case "borderColor":
				e.info.BorderColor = core1_0.BorderColor(reader.Int())
			case "unnormalizedCoordinates":
				e.info.UnnormalizedCoordinates = reader.Int() != 0
			case "compareEnable":
				e.info.CompareEnable = reader.Int() != 0
			case "mipLodBias":
				e.info.MipLodBias = float32(reader.Float64())
			case "minLod":
				e.info.MinLod = float32(reader.Float64())
			case "maxLod":
				e.info.MaxLod = float32(reader.Float64())
			default:
				reader.SkipValue()
			}
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumSamplers(len(entries))
	r.samplers = make([]Handle, len(entries))
	for i := range entries {
		info, err := arenaOne(&r.alloc, &entries[i].info)
		if err != nil {
			return err
		}
		if err := creator.EnqueueCreateSampler(entries[i].hash, i, info, &r.samplers[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parseRefArray(reader *jreader.Reader) []Ref {
	var refs []Ref
	arr := reader.Array()
	for arr.Next() {
		refs = append(refs, Ref(reader.Int()))
	}
	if refs == nil {
		refs = []Ref{}
	}
	return refs
}

func (r *Replayer) parseDescriptorSetLayouts(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[recordedSetLayout]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[recordedSetLayout]
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.flags = uint32(reader.Int())
			case "bindings":
				bindings := reader.Array()
				for bindings.Next() {
					var b recordedBinding
					bobj := reader.Object()
					for bobj.Next() {
						switch string(bobj.Name()) {
						case "descriptorType":
							b.descriptorType = core1_0.DescriptorType(reader.Int())
						case "descriptorCount":
							b.descriptorCount = uint32(reader.Int())
						case "stageFlags":
							b.stageFlags = core1_0.ShaderStageFlags(reader.Int())
						case "binding":
							b.binding = uint32(reader.Int())
						case "immutableSamplers":
							b.immutableSamplers = r.parseRefArray(reader)
						default:
							reader.SkipValue()
						}
					}
					e.info.bindings = append(e.info.bindings, b)
				}
			default:
				reader.SkipValue()
			}
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumDescriptorSetLayouts(len(entries))
	r.setLayouts = make([]Handle, len(entries))
	for i := range entries {
		rec := &entries[i].info
		info := scratch.AllocOne[DescriptorSetLayoutCreateInfo](&r.alloc)
		if info == nil {
			return ErrAllocationFailed
		}
		info.Flags = rec.flags
		bindings := scratch.Alloc[DescriptorSetLayoutBinding](&r.alloc, len(rec.bindings))
		if len(rec.bindings) > 0 && bindings == nil {
			return ErrAllocationFailed
		}
		for j := range rec.bindings {
			rb := &rec.bindings[j]
			bindings[j] = DescriptorSetLayoutBinding{
				Binding:         rb.binding,
				DescriptorType:  rb.descriptorType,
				DescriptorCount: rb.descriptorCount,
				StageFlags:      rb.stageFlags,
			}
			if rb.immutableSamplers == nil {
				continue
			}
			samplers := scratch.Alloc[Handle](&r.alloc, len(rb.immutableSamplers))
			if len(rb.immutableSamplers) > 0 && samplers == nil {
				return ErrAllocationFailed
			}
			for k, ref := range rb.immutableSamplers {
				handle, err := resolveRef(r.samplers, ref, "sampler")
				if err != nil {
					return err
				}
				samplers[k] = handle
			}
			if samplers == nil {
				samplers = []Handle{}
			}
			bindings[j].ImmutableSamplers = samplers
		}
		info.Bindings = bindings
		if err := creator.EnqueueCreateDescriptorSetLayout(entries[i].hash, i, info, &r.setLayouts[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parsePipelineLayouts(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[recordedPipelineLayout]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[recordedPipelineLayout]
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.flags = uint32(reader.Int())
			case "pushConstantRanges":
				ranges := reader.Array()
				for ranges.Next() {
					var rng PushConstantRange
					robj := reader.Object()
					for robj.Next() {
						switch string(robj.Name()) {
						case "stageFlags":
							rng.StageFlags = core1_0.ShaderStageFlags(reader.Int())
						case "size":
							rng.Size = uint32(reader.Int())
						case "offset":
							rng.Offset = uint32(reader.Int())
						default:
							reader.SkipValue()
						}
					}
					e.info.pushConstantRanges = append(e.info.pushConstantRanges, rng)
				}
			case "setLayouts":
				e.info.setLayouts = r.parseRefArray(reader)
			default:
				reader.SkipValue()
			}
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumPipelineLayouts(len(entries))
	r.pipelineLayouts = make([]Handle, len(entries))
	for i := range entries {
		rec := &entries[i].info
		info := scratch.AllocOne[PipelineLayoutCreateInfo](&r.alloc)
		if info == nil {
			return ErrAllocationFailed
		}
		info.Flags = rec.flags
		var err error
		if info.PushConstantRanges, err = arenaSlice(&r.alloc, rec.pushConstantRanges); err != nil {
			return err
		}
		setLayouts := scratch.Alloc[Handle](&r.alloc, len(rec.setLayouts))
		if len(rec.setLayouts) > 0 && setLayouts == nil {
			return ErrAllocationFailed
		}
		for j, ref := range rec.setLayouts {
			handle, err := resolveRef(r.setLayouts, ref, "descriptor set layout")
			if err != nil {
				return err
			}
			setLayouts[j] = handle
		}
		if setLayouts == nil {
			setLayouts = []Handle{}
		}
		info.SetLayouts = setLayouts
		if err := creator.EnqueueCreatePipelineLayout(entries[i].hash, i, info, &r.pipelineLayouts[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parseAttachmentReference(reader *jreader.Reader) AttachmentReference {
	var ref AttachmentReference
	obj := reader.Object()
	for obj.Next() {
		switch string(obj.Name()) {
		case "attachment":
			ref.Attachment = uint32(reader.Int())
		case "layout":
			ref.Layout = core1_0.ImageLayout(reader.Int())
		default:
			reader.SkipValue()
		}
	}
	return ref
}

// parseAttachmentReferences allocates one entry per element of the incoming
// array, however many there are.
func (r *Replayer) parseAttachmentReferences(reader *jreader.Reader) []AttachmentReference {
	var refs []AttachmentReference
	arr := reader.Array()
	for arr.Next() {
		refs = append(refs, r.parseAttachmentReference(reader))
	}
	if refs == nil {
		refs = []AttachmentReference{}
	}
	return refs
}

func (r *Replayer) parseRenderPasses(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[RenderPassCreateInfo]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[RenderPassCreateInfo]
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.Flags = uint32(reader.Int())
			case "dependencies":
				deps := reader.Array()
				for deps.Next() {
					var d SubpassDependency
					dobj := reader.Object()
					for dobj.Next() {
						switch string(dobj.Name()) {
						case "dependencyFlags":
							d.DependencyFlags = uint32(reader.Int())
						case "dstAccessMask":
							d.DstAccessMask = core1_0.AccessFlags(reader.Int())
						case "srcAccessMask":
							d.SrcAccessMask = core1_0.AccessFlags(reader.Int())
						case "dstStageMask":
							d.DstStageMask = core1_0.PipelineStageFlags(reader.Int())
						case "srcStageMask":
							d.SrcStageMask = core1_0.PipelineStageFlags(reader.Int())
						case "dstSubpass":
							d.DstSubpass = uint32(reader.Int())
						case "srcSubpass":
							d.SrcSubpass = uint32(reader.Int())
						default:
							reader.SkipValue()
						}
					}
					e.info.Dependencies = append(e.info.Dependencies, d)
				}
			case "attachments":
				atts := reader.Array()
				for atts.Next() {
					var a AttachmentDescription
					aobj := reader.Object()
					for aobj.Next() {
						switch string(aobj.Name()) {
						case "flags":
							a.Flags = uint32(reader.Int())
						case "format":
							a.Format = core1_0.Format(reader.Int())
						case "finalLayout":
							a.FinalLayout = core1_0.ImageLayout(reader.Int())
						case "initialLayout":
							a.InitialLayout = core1_0.ImageLayout(reader.Int())
						case "loadOp":
							a.LoadOp = core1_0.AttachmentLoadOp(reader.Int())
						case "storeOp":
							a.StoreOp = core1_0.AttachmentStoreOp(reader.Int())
						case "samples":
							a.Samples = core1_0.SampleCountFlags(reader.Int())
						case "stencilLoadOp":
							a.StencilLoadOp = core1_0.AttachmentLoadOp(reader.Int())
						case "stencilStoreOp":
							a.StencilStoreOp = core1_0.AttachmentStoreOp(reader.Int())
						default:
							reader.SkipValue()
						}
					}
					e.info.Attachments = append(e.info.Attachments, a)
				}
			case "subpasses":
				subs := reader.Array()
				for subs.Next() {
					var s SubpassDescription
					sobj := reader.Object()
					for sobj.Next() {
						switch string(sobj.Name()) {
						case "flags":
							s.Flags = uint32(reader.Int())
						case "pipelineBindPoint":
							s.PipelineBindPoint = core1_0.PipelineBindPoint(reader.Int())
						case "preserveAttachments":
							preserves := reader.Array()
							s.PreserveAttachments = []uint32{}
							for preserves.Next() {
								s.PreserveAttachments = append(s.PreserveAttachments, uint32(reader.Int()))
							}
						case "inputAttachments":
							s.InputAttachments = r.parseAttachmentReferences(reader)
						case "colorAttachments":
							s.ColorAttachments = r.parseAttachmentReferences(reader)
						case "resolveAttachments":
							s.ResolveAttachments = r.parseAttachmentReferences(reader)
						case "depthStencilAttachment":
							ref := r.parseAttachmentReference(reader)
							s.DepthStencilAttachment = &ref
						default:
							reader.SkipValue()
						}
					}
					e.info.Subpasses = append(e.info.Subpasses, s)
				}
			default:
				reader.SkipValue()
			}
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumRenderPasses(len(entries))
	r.renderPasses = make([]Handle, len(entries))
	for i := range entries {
		info, err := r.materializeRenderPass(&entries[i].info)
		if err != nil {
			return err
		}
		if err := creator.EnqueueCreateRenderPass(entries[i].hash, i, info, &r.renderPasses[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) materializeRenderPass(src *RenderPassCreateInfo) (*RenderPassCreateInfo, error) {
	info, err := arenaOne(&r.alloc, src)
	if err != nil {
		return nil, err
	}
	if info.Attachments, err = arenaSlice(&r.alloc, src.Attachments); err != nil {
		return nil, err
	}
	if info.Dependencies, err = arenaSlice(&r.alloc, src.Dependencies); err != nil {
		return nil, err
	}
	if info.Subpasses, err = arenaSlice(&r.alloc, src.Subpasses); err != nil {
		return nil, err
	}
	for i := range info.Subpasses {
		sub := &info.Subpasses[i]
		if sub.InputAttachments, err = arenaSlice(&r.alloc, sub.InputAttachments); err != nil {
			return nil, err
		}
		if sub.ColorAttachments, err = arenaSlice(&r.alloc, sub.ColorAttachments); err != nil {
			return nil, err
		}
		if sub.ResolveAttachments, err = arenaSlice(&r.alloc, sub.ResolveAttachments); err != nil {
			return nil, err
		}
		if sub.PreserveAttachments, err = arenaSlice(&r.alloc, sub.PreserveAttachments); err != nil {
			return nil, err
		}
		if sub.DepthStencilAttachment, err = arenaOne(&r.alloc, sub.DepthStencilAttachment); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (r *Replayer) parseSpecializationInfo(reader *jreader.Reader) (*SpecializationInfo, error) {
	spec := &SpecializationInfo{}
	dataSize := -1
	obj := reader.Object()
	for obj.Next() {
		switch string(obj.Name()) {
		case "dataSize":
			dataSize = reader.Int()
		case "code":
			data, err := base64.StdEncoding.DecodeString(reader.String())
			if err != nil {
				return nil, parseError("bad specialization data encoding: %v", err)
			}
			spec.Data = data
		case "mapEntries":
			entries := reader.Array()
			for entries.Next() {
				var e SpecializationMapEntry
				eobj := reader.Object()
				for eobj.Next() {
					switch string(eobj.Name()) {
					case "offset":
						e.Offset = uint32(reader.Int())
					case "size":
						e.Size = uint32(reader.Int())
					case "constantID":
						e.ConstantID = uint32(reader.Int())
					default:
						reader.SkipValue()
					}
				}
				spec.MapEntries = append(spec.MapEntries, e)
			}
		default:
			reader.SkipValue()
		}
	}
	if dataSize >= 0 && dataSize != len(spec.Data) {
		return nil, parseError("dataSize %d does not match %d decoded bytes", dataSize, len(spec.Data))
	}
	return spec, nil
}

func (r *Replayer) parseStage(reader *jreader.Reader) (recordedStage, error) {
	var stage recordedStage
	obj := reader.Object()
	for obj.Next() {
		switch string(obj.Name()) {
		case "flags":
			stage.flags = uint32(reader.Int())
		case "name":
			stage.name = reader.String()
		case "module":
			stage.module = Ref(reader.Int())
		case "stage":
			stage.stage = core1_0.ShaderStageFlags(reader.Int())
		case "specializationInfo":
			spec, err := r.parseSpecializationInfo(reader)
			if err != nil {
				return stage, err
			}
			stage.specialization = spec
		default:
			reader.SkipValue()
		}
	}
	return stage, nil
}

func (r *Replayer) materializeStage(rec *recordedStage) (PipelineShaderStage, error) {
	module, err := resolveRef(r.shaderModules, rec.module, "shader module")
	if err != nil {
		return PipelineShaderStage{}, err
	}
	name, err := arenaString(&r.alloc, rec.name)
	if err != nil {
		return PipelineShaderStage{}, err
	}
	stage := PipelineShaderStage{
		Flags:  rec.flags,
		Stage:  rec.stage,
		Module: module,
		Name:   name,
	}
	if rec.specialization != nil {
		spec, err := arenaOne(&r.alloc, rec.specialization)
		if err != nil {
			return PipelineShaderStage{}, err
		}
		if spec.MapEntries, err = arenaSlice(&r.alloc, rec.specialization.MapEntries); err != nil {
			return PipelineShaderStage{}, err
		}
		if spec.Data, err = arenaSlice(&r.alloc, rec.specialization.Data); err != nil {
			return PipelineShaderStage{}, err
		}
		stage.SpecializationInfo = spec
	}
	return stage, nil
}

func (r *Replayer) parseComputePipelines(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[recordedComputePipeline]

	arr := reader.Array()
	for arr.Next() {
		var e parsedEntry[recordedComputePipeline]
		elem := reader.Object()
		for elem.Next() {
			switch string(elem.Name()) {
			case "hash":
				h, err := parseHashString(reader.String())
				if err != nil {
					return err
				}
				e.hash = h
			case "flags":
				e.info.flags = uint32(reader.Int())
			case "layout":
				e.info.layout = Ref(reader.Int())
			case "basePipelineHandle":
				e.info.basePipeline = Ref(reader.Int())
			case "basePipelineIndex":
				e.info.basePipelineIndex = int32(reader.Int())
			case "stage":
				stage, err := r.parseStage(reader)
				if err != nil {
					return err
				}
				e.info.stage = stage
			default:
				reader.SkipValue()
			}
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumComputePipelines(len(entries))
	r.computePipelines = make([]Handle, len(entries))
	for i := range entries {
		rec := &entries[i].info
		info := scratch.AllocOne[ComputePipelineCreateInfo](&r.alloc)
		if info == nil {
			return ErrAllocationFailed
		}
		info.Flags = rec.flags
		info.BasePipelineIndex = rec.basePipelineIndex
		var err error
		if info.Layout, err = resolveRef(r.pipelineLayouts, rec.layout, "pipeline layout"); err != nil {
			return err
		}
		if info.BasePipelineHandle, err = resolveRef(r.computePipelines, rec.basePipeline, "compute pipeline"); err != nil {
			return err
		}
		if info.Stage, err = r.materializeStage(&rec.stage); err != nil {
			return err
		}
		if err := creator.EnqueueCreateComputePipeline(entries[i].hash, i, info, &r.computePipelines[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parseGraphicsPipelines(creator Creator, reader *jreader.Reader) error {
	var entries []parsedEntry[recordedGraphicsPipeline]

	arr := reader.Array()
	for arr.Next() {
		e, err := r.parseGraphicsPipelineElement(reader)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := reader.Error(); err != nil {
		return cerrors.Mark(err, ErrParse)
	}

	creator.SetNumGraphicsPipelines(len(entries))
	r.graphicsPipelines = make([]Handle, len(entries))
	for i := range entries {
		info, err := r.materializeGraphicsPipeline(&entries[i].info)
		if err != nil {
			return err
		}
		if err := creator.EnqueueCreateGraphicsPipeline(entries[i].hash, i, info, &r.graphicsPipelines[i]); err != nil {
			return err
		}
	}
	creator.WaitEnqueue()
	return nil
}

func (r *Replayer) parseGraphicsPipelineElement(reader *jreader.Reader) (parsedEntry[recordedGraphicsPipeline], error) {
	var e parsedEntry[recordedGraphicsPipeline]
	elem := reader.Object()
	for elem.Next() {
		switch string(elem.Name()) {
		case "hash":
			h, err := parseHashString(reader.String())
			if err != nil {
				return e, err
			}
			e.hash = h
		case "flags":
			e.info.flags = uint32(reader.Int())
		case "basePipelineHandle":
			e.info.basePipeline = Ref(reader.Int())
		case "basePipelineIndex":
			e.info.basePipelineIndex = int32(reader.Int())
		case "layout":
			e.info.layout = Ref(reader.Int())
		case "renderPass":
			e.info.renderPass = Ref(reader.Int())
		case "subpass":
			e.info.subpass = uint32(reader.Int())
		case "tessellationState":
			tess := &TessellationState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					tess.Flags = uint32(reader.Int())
				case "patchControlPoints":
					tess.PatchControlPoints = uint32(reader.Int())
				default:
					reader.SkipValue()
				}
			}
			e.info.tessellation = tess
		case "dynamicState":
			dyn := &DynamicStateInfo{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					dyn.Flags = uint32(reader.Int())
				case "dynamicState":
					states := reader.Array()
					dyn.DynamicStates = []core1_0.DynamicState{}
					for states.Next() {
						dyn.DynamicStates = append(dyn.DynamicStates, core1_0.DynamicState(reader.Int()))
					}
				default:
					reader.SkipValue()
				}
			}
			e.info.dynamicState = dyn
		case "multisampleState":
			ms := &MultisampleState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					ms.Flags = uint32(reader.Int())
				case "rasterizationSamples":
					ms.RasterizationSamples = core1_0.SampleCountFlags(reader.Int())
				case "sampleShadingEnable":
					ms.SampleShadingEnable = reader.Int() != 0
				case "minSampleShading":
					ms.MinSampleShading = float32(reader.Float64())
				case "alphaToOneEnable":
					ms.AlphaToOneEnable = reader.Int() != 0
				case "alphaToCoverageEnable":
					ms.AlphaToCoverageEnable = reader.Int() != 0
				case "sampleMask":
					mask := reader.Array()
					ms.SampleMask = []uint32{}
					for mask.Next() {
						ms.SampleMask = append(ms.SampleMask, uint32(reader.Int()))
					}
				default:
					reader.SkipValue()
				}
			}
			e.info.multisample = ms
		case "vertexInputState":
			vi := &VertexInputState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					vi.Flags = uint32(reader.Int())
				case "attributes":
					attrs := reader.Array()
					for attrs.Next() {
						var a VertexInputAttribute
						aobj := reader.Object()
						for aobj.Next() {
							switch string(aobj.Name()) {
							case "location":
								a.Location = uint32(reader.Int())
							case "binding":
								a.Binding = uint32(reader.Int())
							case "offset":
								a.Offset = uint32(reader.Int())
							case "format":
								a.Format = core1_0.Format(reader.Int())
							default:
								reader.SkipValue()
							}
						}
						vi.Attributes = append(vi.Attributes, a)
					}
				case "bindings":
					binds := reader.Array()
					for binds.Next() {
						var b VertexInputBinding
						bobj := reader.Object()
						for bobj.Next() {
							switch string(bobj.Name()) {
							case "binding":
								b.Binding = uint32(reader.Int())
							case "stride":
								b.Stride = uint32(reader.Int())
							case "inputRate":
								b.InputRate = core1_0.VertexInputRate(reader.Int())
							default:
								reader.SkipValue()
							}
						}
						vi.Bindings = append(vi.Bindings, b)
					}
				default:
					reader.SkipValue()
				}
			}
			e.info.vertexInput = vi
		case "rasterizationState":
			rs := &RasterizationState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					rs.Flags = uint32(reader.Int())
				case "depthBiasConstantFactor":
					rs.DepthBiasConstantFactor = float32(reader.Float64())
				case "depthBiasSlopeFactor":
					rs.DepthBiasSlopeFactor = float32(reader.Float64())
				case "depthBiasClamp":
					rs.DepthBiasClamp = float32(reader.Float64())
				case "depthBiasEnable":
					rs.DepthBiasEnable = reader.Int() != 0
				case "depthClampEnable":
					rs.DepthClampEnable = reader.Int() != 0
				case "polygonMode":
					rs.PolygonMode = core1_0.PolygonMode(reader.Int())
				case "rasterizerDiscardEnable":
					rs.RasterizerDiscardEnable = reader.Int() != 0
				case "frontFace":
					rs.FrontFace = core1_0.FrontFace(reader.Int())
				case "lineWidth":
					rs.LineWidth = float32(reader.Float64())
				case "cullMode":
					rs.CullMode = core1_0.CullModeFlags(reader.Int())
				default:
					reader.SkipValue()
				}
			}
			e.info.rasterization = rs
		case "inputAssemblyState":
			ia := &InputAssemblyState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					ia.Flags = uint32(reader.Int())
				case "topology":
					ia.Topology = core1_0.PrimitiveTopology(reader.Int())
				case "primitiveRestartEnable":
					ia.PrimitiveRestartEnable = reader.Int() != 0
				default:
					reader.SkipValue()
				}
			}
			e.info.inputAssembly = ia
		case "colorBlendState":
			cb := &ColorBlendState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					cb.Flags = uint32(reader.Int())
				case "logicOp":
					cb.LogicOp = core1_0.LogicOp(reader.Int())
				case "logicOpEnable":
					cb.LogicOpEnable = reader.Int() != 0
				case "blendConstants":
					constants := reader.Array()
					for i := 0; constants.Next(); i++ {
						v := float32(reader.Float64())
						if i < len(cb.BlendConstants) {
							cb.BlendConstants[i] = v
						}
					}
				case "attachments":
					atts := reader.Array()
					cb.Attachments = []ColorBlendAttachment{}
					for atts.Next() {
						var a ColorBlendAttachment
						aobj := reader.Object()
						for aobj.Next() {
							switch string(aobj.Name()) {
							case "dstAlphaBlendFactor":
								a.DstAlphaBlendFactor = core1_0.BlendFactor(reader.Int())
							case "srcAlphaBlendFactor":
								a.SrcAlphaBlendFactor = core1_0.BlendFactor(reader.Int())
							case "dstColorBlendFactor":
								a.DstColorBlendFactor = core1_0.BlendFactor(reader.Int())
							case "srcColorBlendFactor":
								a.SrcColorBlendFactor = core1_0.BlendFactor(reader.Int())
							case "colorWriteMask":
								a.ColorWriteMask = core1_0.ColorComponentFlags(reader.Int())
							case "alphaBlendOp":
								a.AlphaBlendOp = core1_0.BlendOp(reader.Int())
							case "colorBlendOp":
								a.ColorBlendOp = core1_0.BlendOp(reader.Int())
							case "blendEnable":
								a.BlendEnable = reader.Int() != 0
							default:
								reader.SkipValue()
							}
						}
						cb.Attachments = append(cb.Attachments, a)
					}
				default:
					reader.SkipValue()
				}
			}
			e.info.colorBlend = cb
		case "viewportState":
			vp := &ViewportState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					vp.Flags = uint32(reader.Int())
				case "viewportCount":
					vp.ViewportCount = uint32(reader.Int())
				case "scissorCount":
					vp.ScissorCount = uint32(reader.Int())
				case "viewports":
					views := reader.Array()
					vp.Viewports = []Viewport{}
					for views.Next() {
						var v Viewport
						vobj := reader.Object()
						for vobj.Next() {
							switch string(vobj.Name()) {
							case "x":
								v.X = float32(reader.Float64())
							case "y":
								v.Y = float32(reader.Float64())
							case "width":
								v.Width = float32(reader.Float64())
							case "height":
								v.Height = float32(reader.Float64())
							case "minDepth":
								v.MinDepth = float32(reader.Float64())
							case "maxDepth":
								v.MaxDepth = float32(reader.Float64())
							default:
								reader.SkipValue()
							}
						}
						vp.Viewports = append(vp.Viewports, v)
					}
				case "scissors":
					scissors := reader.Array()
					vp.Scissors = []Rect2D{}
					for scissors.Next() {
						var s Rect2D
						sobj := reader.Object()
						for sobj.Next() {
							switch string(sobj.Name()) {
							case "x":
								s.X = int32(reader.Int())
							case "y":
								s.Y = int32(reader.Int())
							case "width":
								s.Width = uint32(reader.Int())
							case "height":
								s.Height = uint32(reader.Int())
							default:
								reader.SkipValue()
							}
						}
						vp.Scissors = append(vp.Scissors, s)
					}
				default:
					reader.SkipValue()
				}
			}
			e.info.viewport = vp
		case "depthStencilState":
			ds := &DepthStencilState{}
			obj := reader.Object()
			for obj.Next() {
				switch string(obj.Name()) {
				case "flags":
					ds.Flags = uint32(reader.Int())
				case "stencilTestEnable":
					ds.StencilTestEnable = reader.Int() != 0
				case "maxDepthBounds":
					ds.MaxDepthBounds = float32(reader.Float64())
				case "minDepthBounds":
					ds.MinDepthBounds = float32(reader.Float64())
				case "depthBoundsTestEnable":
					ds.DepthBoundsTestEnable = reader.Int() != 0
				case "depthWriteEnable":
					ds.DepthWriteEnable = reader.Int() != 0
				case "depthTestEnable":
					ds.DepthTestEnable = reader.Int() != 0
				case "depthCompareOp":
					ds.DepthCompareOp = core1_0.CompareOp(reader.Int())
				case "front":
					ds.Front = r.parseStencilOpState(reader)
				case "back":
					ds.Back = r.parseStencilOpState(reader)
				default:
					reader.SkipValue()
				}
			}
			e.info.depthStencil = ds
		case "stages":
			stages := reader.Array()
			e.info.stages = []recordedStage{}
			for stages.Next() {
				stage, err := r.parseStage(reader)
				if err != nil {
					return e, err
				}
				e.info.stages = append(e.info.stages, stage)
			}
		default:
			reader.SkipValue()
		}
	}
	return e, nil
}

func (r *Replayer) parseStencilOpState(reader *jreader.Reader) StencilOpState {
	var s StencilOpState
	obj := reader.Object()
	for obj.Next() {
		switch string(obj.Name()) {
		case "compareOp":
			s.CompareOp = core1_0.CompareOp(reader.Int())
		case "writeMask":
			s.WriteMask = uint32(reader.Int())
		case "reference":
			s.Reference = uint32(reader.Int())
		case "compareMask":
			s.CompareMask = uint32(reader.Int())
		case "passOp":
			s.PassOp = core1_0.StencilOp(reader.Int())
		case "failOp":
			s.FailOp = core1_0.StencilOp(reader.Int())
		case "depthFailOp":
			s.DepthFailOp = core1_0.StencilOp(reader.Int())
		default:
			reader.SkipValue()
		}
	}
	return s
}

func (r *Replayer) materializeGraphicsPipeline(rec *recordedGraphicsPipeline) (*GraphicsPipelineCreateInfo, error) {
	info := scratch.AllocOne[GraphicsPipelineCreateInfo](&r.alloc)
	if info == nil {
		return nil, ErrAllocationFailed
	}
	info.Flags = rec.flags
	info.Subpass = rec.subpass
	info.BasePipelineIndex = rec.basePipelineIndex

	var err error
	if info.Layout, err = resolveRef(r.pipelineLayouts, rec.layout, "pipeline layout"); err != nil {
		return nil, err
	}
	if info.RenderPass, err = resolveRef(r.renderPasses, rec.renderPass, "render pass"); err != nil {
		return nil, err
	}
	if info.BasePipelineHandle, err = resolveRef(r.graphicsPipelines, rec.basePipeline, "graphics pipeline"); err != nil {
		return nil, err
	}

	stages := scratch.Alloc[PipelineShaderStage](&r.alloc, len(rec.stages))
	if len(rec.stages) > 0 && stages == nil {
		return nil, ErrAllocationFailed
	}
	for i := range rec.stages {
		if stages[i], err = r.materializeStage(&rec.stages[i]); err != nil {
			return nil, err
		}
	}
	if stages == nil {
		stages = []PipelineShaderStage{}
	}
	info.Stages = stages

	if info.VertexInput, err = arenaOne(&r.alloc, rec.vertexInput); err != nil {
		return nil, err
	}
	if info.VertexInput != nil {
		if info.VertexInput.Bindings, err = arenaSlice(&r.alloc, rec.vertexInput.Bindings); err != nil {
			return nil, err
		}
		if info.VertexInput.Attributes, err = arenaSlice(&r.alloc, rec.vertexInput.Attributes); err != nil {
			return nil, err
		}
	}

	if info.InputAssembly, err = arenaOne(&r.alloc, rec.inputAssembly); err != nil {
		return nil, err
	}
	if info.Tessellation, err = arenaOne(&r.alloc, rec.tessellation); err != nil {
		return nil, err
	}

	if info.Viewport, err = arenaOne(&r.alloc, rec.viewport); err != nil {
		return nil, err
	}
	if info.Viewport != nil {
		if info.Viewport.Viewports, err = arenaSlice(&r.alloc, rec.viewport.Viewports); err != nil {
			return nil, err
		}
		if info.Viewport.Scissors, err = arenaSlice(&r.alloc, rec.viewport.Scissors); err != nil {
			return nil, err
		}
	}

	if info.Rasterization, err = arenaOne(&r.alloc, rec.rasterization); err != nil {
		return nil, err
	}

	if info.Multisample, err = arenaOne(&r.alloc, rec.multisample); err != nil {
		return nil, err
	}
	if info.Multisample != nil {
		if info.Multisample.SampleMask, err = arenaSlice(&r.alloc, rec.multisample.SampleMask); err != nil {
			return nil, err
		}
	}

	if info.DepthStencil, err = arenaOne(&r.alloc, rec.depthStencil); err != nil {
		return nil, err
	}

	if info.ColorBlend, err = arenaOne(&r.alloc, rec.colorBlend); err != nil {
		return nil, err
	}
	if info.ColorBlend != nil {
		if info.ColorBlend.Attachments, err = arenaSlice(&r.alloc, rec.colorBlend.Attachments); err != nil {
			return nil, err
		}
	}

	if info.DynamicState, err = arenaOne(&r.alloc, rec.dynamicState); err != nil {
		return nil, err
	}
	if info.DynamicState != nil {
		if info.DynamicState.DynamicStates, err = arenaSlice(&r.alloc, rec.dynamicState.DynamicStates); err != nil {
			return nil, err
		}
	}

	return info, nil
}
