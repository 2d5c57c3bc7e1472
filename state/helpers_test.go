package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func requireUnmarshal(t *testing.T, data []byte, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, out))
}

type createdObject struct {
	kind  string
	index int
	hash  Hash
}

// recordingCreator is a synchronous Creator that records every call and
// hands out monotonically increasing handles.
type recordingCreator struct {
	created []createdObject
	counts  map[string]int

	modules           []*ShaderModuleCreateInfo
	samplers          []*SamplerCreateInfo
	setLayouts        []*DescriptorSetLayoutCreateInfo
	pipelineLayouts   []*PipelineLayoutCreateInfo
	renderPasses      []*RenderPassCreateInfo
	computePipelines  []*ComputePipelineCreateInfo
	graphicsPipelines []*GraphicsPipelineCreateInfo

	nextHandle Handle
	waits      int
}

func newRecordingCreator() *recordingCreator {
	return &recordingCreator{counts: make(map[string]int), nextHandle: 0x1000}
}

func (c *recordingCreator) handleOut(out *Handle) {
	c.nextHandle++
	*out = c.nextHandle
}

func (c *recordingCreator) SetNumShaderModules(count int) { c.counts["shaderModule"] = count }
func (c *recordingCreator) EnqueueCreateShaderModule(hash Hash, index int, info *ShaderModuleCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"shaderModule", index, hash})
	c.modules = append(c.modules, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumSamplers(count int) { c.counts["sampler"] = count }
func (c *recordingCreator) EnqueueCreateSampler(hash Hash, index int, info *SamplerCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"sampler", index, hash})
	c.samplers = append(c.samplers, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumDescriptorSetLayouts(count int) { c.counts["descriptorSetLayout"] = count }
func (c *recordingCreator) EnqueueCreateDescriptorSetLayout(hash Hash, index int, info *DescriptorSetLayoutCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"descriptorSetLayout", index, hash})
	c.setLayouts = append(c.setLayouts, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumPipelineLayouts(count int) { c.counts["pipelineLayout"] = count }
func (c *recordingCreator) EnqueueCreatePipelineLayout(hash Hash, index int, info *PipelineLayoutCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"pipelineLayout", index, hash})
	c.pipelineLayouts = append(c.pipelineLayouts, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumRenderPasses(count int) { c.counts["renderPass"] = count }
func (c *recordingCreator) EnqueueCreateRenderPass(hash Hash, index int, info *RenderPassCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"renderPass", index, hash})
	c.renderPasses = append(c.renderPasses, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumComputePipelines(count int) { c.counts["computePipeline"] = count }
func (c *recordingCreator) EnqueueCreateComputePipeline(hash Hash, index int, info *ComputePipelineCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"computePipeline", index, hash})
	c.computePipelines = append(c.computePipelines, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) SetNumGraphicsPipelines(count int) { c.counts["graphicsPipeline"] = count }
func (c *recordingCreator) EnqueueCreateGraphicsPipeline(hash Hash, index int, info *GraphicsPipelineCreateInfo, out *Handle) error {
	c.created = append(c.created, createdObject{"graphicsPipeline", index, hash})
	c.graphicsPipelines = append(c.graphicsPipelines, info)
	c.handleOut(out)
	return nil
}

func (c *recordingCreator) WaitEnqueue() { c.waits++ }

// Handles used for registration in tests. Arbitrary nonzero values; the
// recorder only ever compares them for identity.
const (
	testModuleHandle     Handle = 0x10
	testSamplerHandle    Handle = 0x20
	testSetLayoutHandle  Handle = 0x30
	testPipeLayoutHandle Handle = 0x40
	testRenderPassHandle Handle = 0x50
)

func testShaderModuleInfo() *ShaderModuleCreateInfo {
	return &ShaderModuleCreateInfo{
		Flags: 0,
		Code:  []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04},
	}
}

func testSamplerInfo() *SamplerCreateInfo {
	return &SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterNearest,
		MipmapMode:   core1_0.SamplerMipmapModeLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeClampToEdge,
		AddressModeW: core1_0.SamplerAddressModeClampToBorder,
		MaxLod:       8,
	}
}

func testRenderPassInfo() *RenderPassCreateInfo {
	return &RenderPassCreateInfo{
		Attachments: []AttachmentDescription{
			{
				Format:        core1_0.FormatR8G8B8A8UnsignedNormalized,
				Samples:       core1_0.Samples1,
				LoadOp:        core1_0.AttachmentLoadOpClear,
				StoreOp:       core1_0.AttachmentStoreOpStore,
				InitialLayout: core1_0.ImageLayoutUndefined,
				FinalLayout:   core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		Subpasses: []SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []AttachmentReference{
					{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
				},
			},
		},
	}
}

// registerPipelineDependencies registers a module, a pipeline layout and a
// render pass with handles, so graphics and compute pipelines can refer to
// them.
func registerPipelineDependencies(t *testing.T, r *Recorder) {
	t.Helper()

	moduleInfo := testShaderModuleInfo()
	index, err := r.RegisterShaderModule(ComputeShaderModuleHash(moduleInfo), moduleInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetShaderModuleHandle(index, testModuleHandle))

	layoutInfo := &PipelineLayoutCreateInfo{}
	layoutHash, err := ComputePipelineLayoutHash(r, layoutInfo)
	require.NoError(t, err)
	index, err = r.RegisterPipelineLayout(layoutHash, layoutInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetPipelineLayoutHandle(index, testPipeLayoutHandle))

	passInfo := testRenderPassInfo()
	index, err = r.RegisterRenderPass(ComputeRenderPassHash(passInfo), passInfo)
	require.NoError(t, err)
	require.NoError(t, r.SetRenderPassHandle(index, testRenderPassHandle))
}
