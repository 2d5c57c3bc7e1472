package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeIsByteStable(t *testing.T) {
	r, _ := buildFullRecorder(t)

	first, err := r.Serialize()
	require.NoError(t, err)
	second, err := r.Serialize()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSerializeEmitsDistinctAddressModes(t *testing.T) {
	r := NewRecorder()
	info := testSamplerInfo()
	_, err := r.RegisterSampler(ComputeSamplerHash(info), info)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	var parsed map[string]interface{}
	requireUnmarshal(t, doc, &parsed)
	sampler := parsed["samplers"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, float64(info.AddressModeU), sampler["addressModeU"])
	require.Equal(t, float64(info.AddressModeV), sampler["addressModeV"])
	require.Equal(t, float64(info.AddressModeW), sampler["addressModeW"])
	require.NotEqual(t, sampler["addressModeU"], sampler["addressModeV"])
}

func TestSerializeEmitsCodeSize(t *testing.T) {
	r := NewRecorder()
	info := testShaderModuleInfo()
	_, err := r.RegisterShaderModule(ComputeShaderModuleHash(info), info)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	var parsed map[string]interface{}
	requireUnmarshal(t, doc, &parsed)
	module := parsed["shaderModules"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, float64(8), module["codeSize"])
}

func TestSerializeEmitsColorBlendAttachments(t *testing.T) {
	r, _ := buildFullRecorder(t)

	graphics := baseGraphicsPipeline()
	graphics.ColorBlend = &ColorBlendState{
		Attachments: []ColorBlendAttachment{{BlendEnable: false}},
	}
	hash, err := ComputeGraphicsPipelineHash(r, graphics)
	require.NoError(t, err)
	_, err = r.RegisterGraphicsPipeline(hash, graphics)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	var parsed map[string]interface{}
	requireUnmarshal(t, doc, &parsed)
	pipes := parsed["graphicsPipelines"].([]interface{})
	pipe := pipes[len(pipes)-1].(map[string]interface{})
	blend := pipe["colorBlendState"].(map[string]interface{})
	require.Len(t, blend["attachments"].([]interface{}), 1)
	require.Len(t, blend["blendConstants"].([]interface{}), 4)
}

func TestSerializeEmitsSubpassDetail(t *testing.T) {
	r := NewRecorder()

	pass := testRenderPassInfo()
	pass.Subpasses[0].PreserveAttachments = []uint32{7}
	depth := AttachmentReference{Attachment: 0, Layout: 0}
	pass.Subpasses[0].DepthStencilAttachment = &depth

	_, err := r.RegisterRenderPass(ComputeRenderPassHash(pass), pass)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	var parsed map[string]interface{}
	requireUnmarshal(t, doc, &parsed)
	subpass := parsed["renderPasses"].([]interface{})[0].(map[string]interface{})["subpasses"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, []interface{}{float64(7)}, subpass["preserveAttachments"])
	require.Contains(t, subpass, "depthStencilAttachment")
}

func TestSerializeHashIsHex(t *testing.T) {
	r := NewRecorder()
	info := testShaderModuleInfo()
	hash := ComputeShaderModuleHash(info)
	_, err := r.RegisterShaderModule(hash, info)
	require.NoError(t, err)

	doc, err := r.Serialize()
	require.NoError(t, err)

	var parsed map[string]interface{}
	requireUnmarshal(t, doc, &parsed)
	module := parsed["shaderModules"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, formatHash(hash), module["hash"])
	require.Len(t, module["hash"], 16)
}
