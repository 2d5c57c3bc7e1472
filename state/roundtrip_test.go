package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestShaderModuleRoundTrip(t *testing.T) {
	r := NewRecorder()

	info := testShaderModuleInfo()
	hash := ComputeShaderModuleHash(info)
	_, err := r.RegisterShaderModule(hash, info)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, doc))

	require.Equal(t, 1, creator.counts["shaderModule"])
	require.Len(t, creator.modules, 1)
	require.Equal(t, createdObject{"shaderModule", 0, hash}, creator.created[0])
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}, creator.modules[0].Code)
	require.Equal(t, uint32(0), creator.modules[0].Flags)
}

func TestSamplerReferenceResolvesToCreatedHandle(t *testing.T) {
	r := NewRecorder()

	samplerInfo := testSamplerInfo()
	samplerHash := ComputeSamplerHash(samplerInfo)
	index, err := r.RegisterSampler(samplerHash, samplerInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetSamplerHandle(index, testSamplerHandle))

	layout := &DescriptorSetLayoutCreateInfo{
		Bindings: []DescriptorSetLayoutBinding{
			{
				Binding:           0,
				DescriptorType:    core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount:   1,
				StageFlags:        core1_0.StageFragment,
				ImmutableSamplers: []Handle{testSamplerHandle},
			},
		},
	}
	layoutHash, err := ComputeDescriptorSetLayoutHash(r, layout)
	require.NoError(t, err)
	_, err = r.RegisterDescriptorSetLayout(layoutHash, layout)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, doc))

	require.Len(t, creator.samplers, 1)
	require.Len(t, creator.setLayouts, 1)
	created := creator.setLayouts[0].Bindings[0].ImmutableSamplers[0]
	require.Equal(t, Handle(0x1001), created, "layout must reference the freshly created sampler for index 0")
	require.Equal(t, core1_0.FilterLinear, creator.samplers[0].MagFilter)
	require.Equal(t, core1_0.SamplerAddressModeClampToEdge, creator.samplers[0].AddressModeV)
	require.Equal(t, core1_0.SamplerAddressModeClampToBorder, creator.samplers[0].AddressModeW)
}

// buildFullRecorder populates every descriptor kind and returns the
// (kind, index, hash) triples a replay must reproduce, in section order.
func buildFullRecorder(t *testing.T) (*Recorder, []createdObject) {
	t.Helper()
	r := NewRecorder()

	moduleInfo := testShaderModuleInfo()
	moduleHash := ComputeShaderModuleHash(moduleInfo)
	index, err := r.RegisterShaderModule(moduleHash, moduleInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetShaderModuleHandle(index, testModuleHandle))

	samplerInfo := testSamplerInfo()
	samplerHash := ComputeSamplerHash(samplerInfo)
	index, err = r.RegisterSampler(samplerHash, samplerInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetSamplerHandle(index, testSamplerHandle))

	setLayout := &DescriptorSetLayoutCreateInfo{
		Bindings: []DescriptorSetLayoutBinding{
			{
				Binding:           1,
				DescriptorType:    core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount:   1,
				StageFlags:        core1_0.StageFragment,
				ImmutableSamplers: []Handle{testSamplerHandle},
			},
			{
				Binding:         2,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      core1_0.StageVertex,
			},
		},
	}
	setLayoutHash, err := ComputeDescriptorSetLayoutHash(r, setLayout)
	require.NoError(t, err)
	index, err = r.RegisterDescriptorSetLayout(setLayoutHash, setLayout)
	require.NoError(t, err)
	require.NoError(t, r.SetDescriptorSetLayoutHandle(index, testSetLayoutHandle))

	pipeLayout := &PipelineLayoutCreateInfo{
		SetLayouts: []Handle{testSetLayoutHandle, NullHandle},
		PushConstantRanges: []PushConstantRange{
			{StageFlags: core1_0.StageVertex, Offset: 0, Size: 16},
		},
	}
	pipeLayoutHash, err := ComputePipelineLayoutHash(r, pipeLayout)
	require.NoError(t, err)
	index, err = r.RegisterPipelineLayout(pipeLayoutHash, pipeLayout)
	require.NoError(t, err)
	require.NoError(t, r.SetPipelineLayoutHandle(index, testPipeLayoutHandle))

	passInfo := testRenderPassInfo()
	passHash := ComputeRenderPassHash(passInfo)
	index, err = r.RegisterRenderPass(passHash, passInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetRenderPassHandle(index, testRenderPassHandle))

	computeInfo := &ComputePipelineCreateInfo{
		Stage: PipelineShaderStage{
			Stage:  core1_0.StageCompute,
			Module: testModuleHandle,
			Name:   "main",
			SpecializationInfo: &SpecializationInfo{
				MapEntries: []SpecializationMapEntry{{ConstantID: 0, Offset: 0, Size: 4}},
				Data:       []byte{1, 0, 0, 0},
			},
		},
		Layout:            testPipeLayoutHandle,
		BasePipelineIndex: -1,
	}
	computeHash, err := ComputeComputePipelineHash(r, computeInfo)
	require.NoError(t, err)
	_, err = r.RegisterComputePipeline(computeHash, computeInfo)
	require.NoError(t, err)

	graphicsInfo := baseGraphicsPipeline()
	graphicsInfo.VertexInput = &VertexInputState{
		Bindings: []VertexInputBinding{
			{Binding: 0, Stride: 16, InputRate: core1_0.VertexInputRateVertex},
		},
		Attributes: []VertexInputAttribute{
			{Location: 0, Binding: 0, Format: core1_0.FormatR32G32B32A32SignedFloat, Offset: 0},
		},
	}
	graphicsInfo.DepthStencil = &DepthStencilState{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLessOrEqual,
	}
	graphicsHash, err := ComputeGraphicsPipelineHash(r, graphicsInfo)
	require.NoError(t, err)
	_, err = r.RegisterGraphicsPipeline(graphicsHash, graphicsInfo)
	require.NoError(t, err)

	expected := []createdObject{
		{"shaderModule", 0, moduleHash},
		{"sampler", 0, samplerHash},
		{"descriptorSetLayout", 0, setLayoutHash},
		{"pipelineLayout", 0, pipeLayoutHash},
		{"renderPass", 0, passHash},
		{"computePipeline", 0, computeHash},
		{"graphicsPipeline", 0, graphicsHash},
	}
	return r, expected
}

func TestFullRoundTripPreservesTriples(t *testing.T) {
	r, expected := buildFullRecorder(t)

	doc, err := r.Serialize()
	require.NoError(t, err)

	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, doc))
	require.Equal(t, expected, creator.created)

	doc2, err := r.Serialize()
	require.NoError(t, err)
	creator2 := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator2, doc2))
	require.Equal(t, creator.created, creator2.created)
}

func TestRoundTripResolvesPipelineReferences(t *testing.T) {
	r, _ := buildFullRecorder(t)

	doc, err := r.Serialize()
	require.NoError(t, err)

	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, doc))

	// Handles are handed out in enqueue order starting at 0x1001.
	moduleHandle := Handle(0x1001)
	setLayoutHandle := Handle(0x1003)
	pipeLayoutHandle := Handle(0x1004)
	renderPassHandle := Handle(0x1005)

	pipeLayout := creator.pipelineLayouts[0]
	require.Equal(t, []Handle{setLayoutHandle, NullHandle}, pipeLayout.SetLayouts)

	compute := creator.computePipelines[0]
	require.Equal(t, pipeLayoutHandle, compute.Layout)
	require.Equal(t, moduleHandle, compute.Stage.Module)
	require.Equal(t, "main", compute.Stage.Name)
	require.NotNil(t, compute.Stage.SpecializationInfo)
	require.Equal(t, []byte{1, 0, 0, 0}, compute.Stage.SpecializationInfo.Data)

	graphics := creator.graphicsPipelines[0]
	require.Equal(t, pipeLayoutHandle, graphics.Layout)
	require.Equal(t, renderPassHandle, graphics.RenderPass)
	require.Equal(t, moduleHandle, graphics.Stages[0].Module)
	require.Equal(t, NullHandle, graphics.BasePipelineHandle)
	require.NotNil(t, graphics.DepthStencil)
	require.True(t, graphics.DepthStencil.DepthTestEnable)
}

func TestParseRejectsIndexOutOfRange(t *testing.T) {
	doc := []byte(`{
		"samplers": [],
		"descriptorSetLayouts": [
			{
				"hash": "00000000000000aa",
				"flags": 0,
				"bindings": [
					{
						"descriptorType": 1,
						"descriptorCount": 1,
						"stageFlags": 16,
						"binding": 0,
						"immutableSamplers": [3]
					}
				]
			}
		]
	}`)

	creator := newRecordingCreator()
	err := NewReplayer().Parse(creator, doc)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestParseAcceptsLastValidReference(t *testing.T) {
	r := NewRecorder()
	samplerInfo := testSamplerInfo()
	index, err := r.RegisterSampler(ComputeSamplerHash(samplerInfo), samplerInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetSamplerHandle(index, testSamplerHandle))

	layout := &DescriptorSetLayoutCreateInfo{
		Bindings: []DescriptorSetLayoutBinding{
			{
				Binding:           0,
				DescriptorType:    core1_0.DescriptorTypeSampler,
				DescriptorCount:   1,
				StageFlags:        core1_0.StageFragment,
				ImmutableSamplers: []Handle{testSamplerHandle},
			},
		},
	}
	layoutHash, err := ComputeDescriptorSetLayoutHash(r, layout)
	require.NoError(t, err)
	_, err = r.RegisterDescriptorSetLayout(layoutHash, layout)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, doc))
}

func TestParseRejectsOutOfOrderSections(t *testing.T) {
	doc := []byte(`{"samplers": [], "shaderModules": []}`)

	creator := newRecordingCreator()
	err := NewReplayer().Parse(creator, doc)
	require.ErrorIs(t, err, ErrParse)
}

func TestParseMissingSectionsReportZero(t *testing.T) {
	creator := newRecordingCreator()
	require.NoError(t, NewReplayer().Parse(creator, []byte(`{}`)))

	for _, kind := range []string{
		"shaderModule", "sampler", "descriptorSetLayout",
		"pipelineLayout", "renderPass", "computePipeline", "graphicsPipeline",
	} {
		count, ok := creator.counts[kind]
		require.True(t, ok, "missing SetNum call for %s", kind)
		require.Zero(t, count)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	creator := newRecordingCreator()
	err := NewReplayer().Parse(creator, []byte(`{"shaderModules": [{`))
	require.ErrorIs(t, err, ErrParse)
}
