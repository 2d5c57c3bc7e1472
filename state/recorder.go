package state

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/aeikum/fossilize/scratch"
)

// The recorder's stored model. Cross-references are kept as Refs in a
// parallel shape of the create-info surface, so the arena never carries
// handle bits reinterpreted as indices.

type recordedBinding struct {
	binding           uint32
	descriptorType    core1_0.DescriptorType
	descriptorCount   uint32
	stageFlags        core1_0.ShaderStageFlags
	immutableSamplers []Ref
}

type recordedSetLayout struct {
	flags    uint32
	bindings []recordedBinding
}

type recordedPipelineLayout struct {
	flags              uint32
	setLayouts         []Ref
	pushConstantRanges []PushConstantRange
}

type recordedStage struct {
	flags          uint32
	stage          core1_0.ShaderStageFlags
	module         Ref
	name           string
	specialization *SpecializationInfo
}

type recordedGraphicsPipeline struct {
	flags             uint32
	stages            []recordedStage
	vertexInput       *VertexInputState
	inputAssembly     *InputAssemblyState
	tessellation      *TessellationState
	viewport          *ViewportState
	rasterization     *RasterizationState
	multisample       *MultisampleState
	depthStencil      *DepthStencilState
	colorBlend        *ColorBlendState
	dynamicState      *DynamicStateInfo
	layout            Ref
	renderPass        Ref
	subpass           uint32
	basePipeline      Ref
	basePipelineIndex int32
}

type recordedComputePipeline struct {
	flags             uint32
	stage             recordedStage
	layout            Ref
	basePipeline      Ref
	basePipelineIndex int32
}

type tableEntry[T any] struct {
	hash Hash
	info T
}

// table is one per-kind recorder list: an append-only (hash, value) sequence
// plus the handle and hash lookup maps.
type table[T any] struct {
	entries  []tableEntry[T]
	byHandle map[Handle]int
	byHash   map[Hash]int
}

func (t *table[T]) indexForHash(hash Hash) (int, bool) {
	index, ok := t.byHash[hash]
	return index, ok
}

func (t *table[T]) add(hash Hash, info T) int {
	index := len(t.entries)
	t.entries = append(t.entries, tableEntry[T]{hash: hash, info: info})
	if t.byHash == nil {
		t.byHash = make(map[Hash]int)
	}
	t.byHash[hash] = index
	return index
}

func (t *table[T]) setHandle(index int, handle Handle) error {
	if index < 0 || index >= len(t.entries) {
		return cerrors.Newf("index %d is outside the recorded range of %d entries", index, len(t.entries))
	}
	if t.byHandle == nil {
		t.byHandle = make(map[Handle]int)
	}
	t.byHandle[handle] = index
	return nil
}

func (t *table[T]) hashForHandle(handle Handle) (Hash, error) {
	index, ok := t.byHandle[handle]
	if !ok {
		return 0, cerrors.Wrapf(ErrUnknownHandle, "handle %#x", uint64(handle))
	}
	return t.entries[index].hash, nil
}

func (t *table[T]) refForHandle(handle Handle) (Ref, error) {
	if handle == NullHandle {
		return NullRef, nil
	}
	index, ok := t.byHandle[handle]
	if !ok {
		return NullRef, cerrors.Wrapf(ErrUnknownHandle, "handle %#x", uint64(handle))
	}
	return RefFromIndex(index), nil
}

// Recorder captures descriptors by value. Registration copies the whole
// create-info into an arena owned by the recorder, rewrites embedded handles
// to stored references, deduplicates by hash, and assigns a dense per-kind
// index. Producers must be registered before their consumers: a graphics
// pipeline can only be registered once its layout, render pass and modules
// have been registered and given handles.
//
// A Recorder is single-writer; synchronization is the caller's concern.
type Recorder struct {
	alloc scratch.Allocator

	shaderModules     table[ShaderModuleCreateInfo]
	samplers          table[SamplerCreateInfo]
	setLayouts        table[recordedSetLayout]
	pipelineLayouts   table[recordedPipelineLayout]
	renderPasses      table[RenderPassCreateInfo]
	computePipelines  table[recordedComputePipeline]
	graphicsPipelines table[recordedGraphicsPipeline]
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func copySlice[T any](r *Recorder, src []T) ([]T, error) {
	return arenaSlice(&r.alloc, src)
}

func copyOne[T any](r *Recorder, src *T) (*T, error) {
	return arenaOne(&r.alloc, src)
}

func (r *Recorder) copyString(s string) (string, error) {
	return arenaString(&r.alloc, s)
}

// RegisterShaderModule copies the module into the recorder and returns its
// dense index. Registering a hash that is already present returns the
// existing index.
func (r *Recorder) RegisterShaderModule(hash Hash, info *ShaderModuleCreateInfo) (int, error) {
	if index, ok := r.shaderModules.indexForHash(hash); ok {
		return index, nil
	}
	code, err := copySlice(r, info.Code)
	if err != nil {
		return 0, err
	}
	return r.shaderModules.add(hash, ShaderModuleCreateInfo{
		Flags: info.Flags,
		Code:  code,
	}), nil
}

// RegisterSampler copies the sampler into the recorder and returns its dense
// index.
func (r *Recorder) RegisterSampler(hash Hash, info *SamplerCreateInfo) (int, error) {
	if index, ok := r.samplers.indexForHash(hash); ok {
		return index, nil
	}
	return r.samplers.add(hash, *info), nil
}

// RegisterDescriptorSetLayout copies the layout, rewriting immutable-sampler
// handles to stored references. Referenced samplers must be registered.
func (r *Recorder) RegisterDescriptorSetLayout(hash Hash, info *DescriptorSetLayoutCreateInfo) (int, error) {
	if index, ok := r.setLayouts.indexForHash(hash); ok {
		return index, nil
	}

	bindings := scratch.Alloc[recordedBinding](&r.alloc, len(info.Bindings))
	if len(info.Bindings) > 0 && bindings == nil {
		return 0, ErrAllocationFailed
	}
	for i := range info.Bindings {
		b := &info.Bindings[i]
		bindings[i] = recordedBinding{
			binding:         b.Binding,
			descriptorType:  b.DescriptorType,
			descriptorCount: b.DescriptorCount,
			stageFlags:      b.StageFlags,
		}
		if b.ImmutableSamplers == nil {
			continue
		}
		refs := scratch.Alloc[Ref](&r.alloc, len(b.ImmutableSamplers))
		if len(b.ImmutableSamplers) > 0 && refs == nil {
			return 0, ErrAllocationFailed
		}
		for j, sampler := range b.ImmutableSamplers {
			ref, err := r.samplers.refForHandle(sampler)
			if err != nil {
				return 0, cerrors.Wrapf(err, "immutable sampler %d of binding %d", j, b.Binding)
			}
			refs[j] = ref
		}
		bindings[i].immutableSamplers = refs
	}

	return r.setLayouts.add(hash, recordedSetLayout{
		flags:    info.Flags,
		bindings: bindings,
	}), nil
}

// RegisterPipelineLayout copies the layout, rewriting set-layout handles to
// stored references. Null entries stay null.
func (r *Recorder) RegisterPipelineLayout(hash Hash, info *PipelineLayoutCreateInfo) (int, error) {
	if index, ok := r.pipelineLayouts.indexForHash(hash); ok {
		return index, nil
	}

	setLayouts := scratch.Alloc[Ref](&r.alloc, len(info.SetLayouts))
	if len(info.SetLayouts) > 0 && setLayouts == nil {
		return 0, ErrAllocationFailed
	}
	for i, layout := range info.SetLayouts {
		ref, err := r.setLayouts.refForHandle(layout)
		if err != nil {
			return 0, cerrors.Wrapf(err, "set layout %d", i)
		}
		setLayouts[i] = ref
	}

	ranges, err := copySlice(r, info.PushConstantRanges)
	if err != nil {
		return 0, err
	}

	return r.pipelineLayouts.add(hash, recordedPipelineLayout{
		flags:              info.Flags,
		setLayouts:         setLayouts,
		pushConstantRanges: ranges,
	}), nil
}

// RegisterRenderPass copies the render pass and all its attachment,
// dependency and subpass arrays.
func (r *Recorder) RegisterRenderPass(hash Hash, info *RenderPassCreateInfo) (int, error) {
	if index, ok := r.renderPasses.indexForHash(hash); ok {
		return index, nil
	}

	attachments, err := copySlice(r, info.Attachments)
	if err != nil {
		return 0, err
	}
	dependencies, err := copySlice(r, info.Dependencies)
	if err != nil {
		return 0, err
	}
	subpasses, err := copySlice(r, info.Subpasses)
	if err != nil {
		return 0, err
	}
	for i := range subpasses {
		sub := &subpasses[i]
		if sub.InputAttachments, err = copySlice(r, sub.InputAttachments); err != nil {
			return 0, err
		}
		if sub.ColorAttachments, err = copySlice(r, sub.ColorAttachments); err != nil {
			return 0, err
		}
		if sub.ResolveAttachments, err = copySlice(r, sub.ResolveAttachments); err != nil {
			return 0, err
		}
		if sub.PreserveAttachments, err = copySlice(r, sub.PreserveAttachments); err != nil {
			return 0, err
		}
		if sub.DepthStencilAttachment, err = copyOne(r, sub.DepthStencilAttachment); err != nil {
			return 0, err
		}
	}

	return r.renderPasses.add(hash, RenderPassCreateInfo{
		Flags:        info.Flags,
		Attachments:  attachments,
		Dependencies: dependencies,
		Subpasses:    subpasses,
	}), nil
}

func (r *Recorder) copySpecializationInfo(spec *SpecializationInfo) (*SpecializationInfo, error) {
	if spec == nil {
		return nil, nil
	}
	copied, err := copyOne(r, spec)
	if err != nil {
		return nil, err
	}
	if copied.MapEntries, err = copySlice(r, spec.MapEntries); err != nil {
		return nil, err
	}
	if copied.Data, err = copySlice(r, spec.Data); err != nil {
		return nil, err
	}
	return copied, nil
}

func (r *Recorder) copyStage(stage *PipelineShaderStage) (recordedStage, error) {
	name, err := r.copyString(stage.Name)
	if err != nil {
		return recordedStage{}, err
	}
	spec, err := r.copySpecializationInfo(stage.SpecializationInfo)
	if err != nil {
		return recordedStage{}, err
	}
	module, err := r.shaderModules.refForHandle(stage.Module)
	if err != nil {
		return recordedStage{}, cerrors.Wrap(err, "stage module")
	}
	return recordedStage{
		flags:          stage.Flags,
		stage:          stage.Stage,
		module:         module,
		name:           name,
		specialization: spec,
	}, nil
}

// RegisterGraphicsPipeline copies the pipeline, its stages and every present
// sub-state, rewriting layout, render pass, module and base-pipeline handles
// to stored references.
func (r *Recorder) RegisterGraphicsPipeline(hash Hash, info *GraphicsPipelineCreateInfo) (int, error) {
	if index, ok := r.graphicsPipelines.indexForHash(hash); ok {
		return index, nil
	}

	rec := recordedGraphicsPipeline{
		flags:             info.Flags,
		subpass:           info.Subpass,
		basePipelineIndex: info.BasePipelineIndex,
	}

	var err error
	if rec.layout, err = r.pipelineLayouts.refForHandle(info.Layout); err != nil {
		return 0, cerrors.Wrap(err, "pipeline layout")
	}
	if rec.renderPass, err = r.renderPasses.refForHandle(info.RenderPass); err != nil {
		return 0, cerrors.Wrap(err, "render pass")
	}
	if rec.basePipeline, err = r.graphicsPipelines.refForHandle(info.BasePipelineHandle); err != nil {
		return 0, cerrors.Wrap(err, "base pipeline")
	}

	stages := scratch.Alloc[recordedStage](&r.alloc, len(info.Stages))
	if len(info.Stages) > 0 && stages == nil {
		return 0, ErrAllocationFailed
	}
	for i := range info.Stages {
		if stages[i], err = r.copyStage(&info.Stages[i]); err != nil {
			return 0, err
		}
	}
	rec.stages = stages

	if rec.vertexInput, err = copyOne(r, info.VertexInput); err != nil {
		return 0, err
	}
	if rec.vertexInput != nil {
		if rec.vertexInput.Bindings, err = copySlice(r, rec.vertexInput.Bindings); err != nil {
			return 0, err
		}
		if rec.vertexInput.Attributes, err = copySlice(r, rec.vertexInput.Attributes); err != nil {
			return 0, err
		}
	}

	if rec.inputAssembly, err = copyOne(r, info.InputAssembly); err != nil {
		return 0, err
	}
	if rec.tessellation, err = copyOne(r, info.Tessellation); err != nil {
		return 0, err
	}

	if rec.viewport, err = copyOne(r, info.Viewport); err != nil {
		return 0, err
	}
	if rec.viewport != nil {
		if rec.viewport.Viewports, err = copySlice(r, rec.viewport.Viewports); err != nil {
			return 0, err
		}
		if rec.viewport.Scissors, err = copySlice(r, rec.viewport.Scissors); err != nil {
			return 0, err
		}
	}

	if rec.rasterization, err = copyOne(r, info.Rasterization); err != nil {
		return 0, err
	}

	if rec.multisample, err = copyOne(r, info.Multisample); err != nil {
		return 0, err
	}
	if rec.multisample != nil {
		if rec.multisample.SampleMask, err = copySlice(r, rec.multisample.SampleMask); err != nil {
			return 0, err
		}
	}

	if rec.depthStencil, err = copyOne(r, info.DepthStencil); err != nil {
		return 0, err
	}

	if rec.colorBlend, err = copyOne(r, info.ColorBlend); err != nil {
		return 0, err
	}
	if rec.colorBlend != nil {
		if rec.colorBlend.Attachments, err = copySlice(r, rec.colorBlend.Attachments); err != nil {
			return 0, err
		}
	}

	if rec.dynamicState, err = copyOne(r, info.DynamicState); err != nil {
		return 0, err
	}
	if rec.dynamicState != nil {
		if rec.dynamicState.DynamicStates, err = copySlice(r, rec.dynamicState.DynamicStates); err != nil {
			return 0, err
		}
	}

	return r.graphicsPipelines.add(hash, rec), nil
}

// RegisterComputePipeline copies the pipeline, rewriting layout, module and
// base-pipeline handles to stored references.
func (r *Recorder) RegisterComputePipeline(hash Hash, info *ComputePipelineCreateInfo) (int, error) {
	if index, ok := r.computePipelines.indexForHash(hash); ok {
		return index, nil
	}

	rec := recordedComputePipeline{
		flags:             info.Flags,
		basePipelineIndex: info.BasePipelineIndex,
	}

	var err error
	if rec.layout, err = r.pipelineLayouts.refForHandle(info.Layout); err != nil {
		return 0, cerrors.Wrap(err, "pipeline layout")
	}
	if rec.basePipeline, err = r.computePipelines.refForHandle(info.BasePipelineHandle); err != nil {
		return 0, cerrors.Wrap(err, "base pipeline")
	}
	if rec.stage, err = r.copyStage(&info.Stage); err != nil {
		return 0, err
	}

	return r.computePipelines.add(hash, rec), nil
}

// SetShaderModuleHandle records the driver handle for a registered module so
// later registrations can reference it.
func (r *Recorder) SetShaderModuleHandle(index int, handle Handle) error {
	return r.shaderModules.setHandle(index, handle)
}

func (r *Recorder) SetSamplerHandle(index int, handle Handle) error {
	return r.samplers.setHandle(index, handle)
}

func (r *Recorder) SetDescriptorSetLayoutHandle(index int, handle Handle) error {
	return r.setLayouts.setHandle(index, handle)
}

func (r *Recorder) SetPipelineLayoutHandle(index int, handle Handle) error {
	return r.pipelineLayouts.setHandle(index, handle)
}

func (r *Recorder) SetRenderPassHandle(index int, handle Handle) error {
	return r.renderPasses.setHandle(index, handle)
}

func (r *Recorder) SetGraphicsPipelineHandle(index int, handle Handle) error {
	return r.graphicsPipelines.setHandle(index, handle)
}

func (r *Recorder) SetComputePipelineHandle(index int, handle Handle) error {
	return r.computePipelines.setHandle(index, handle)
}

// HashForShaderModule returns the recorded hash for a handle, or
// ErrUnknownHandle if it was never registered.
func (r *Recorder) HashForShaderModule(handle Handle) (Hash, error) {
	return r.shaderModules.hashForHandle(handle)
}

func (r *Recorder) HashForSampler(handle Handle) (Hash, error) {
	return r.samplers.hashForHandle(handle)
}

func (r *Recorder) HashForDescriptorSetLayout(handle Handle) (Hash, error) {
	return r.setLayouts.hashForHandle(handle)
}

func (r *Recorder) HashForPipelineLayout(handle Handle) (Hash, error) {
	return r.pipelineLayouts.hashForHandle(handle)
}

func (r *Recorder) HashForRenderPass(handle Handle) (Hash, error) {
	return r.renderPasses.hashForHandle(handle)
}

func (r *Recorder) HashForGraphicsPipeline(handle Handle) (Hash, error) {
	return r.graphicsPipelines.hashForHandle(handle)
}

func (r *Recorder) HashForComputePipeline(handle Handle) (Hash, error) {
	return r.computePipelines.hashForHandle(handle)
}
