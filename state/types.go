// Package state captures Vulkan pipeline-creation descriptors by value,
// fingerprints them deterministically, and serializes the resulting object
// graph to a portable document that a Replayer can feed back to a driver
// through a Creator.
package state

import (
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Handle is an opaque, process-local identifier produced by a GPU driver.
// Handles have no meaning across processes. 0 is the null handle.
type Handle uint64

// NullHandle is the absent handle.
const NullHandle Handle = 0

// Ref is a stored cross-reference between descriptors: a dense index plus
// one, so that 0 round-trips to null through serialization.
type Ref uint32

// NullRef marks an absent cross-reference.
const NullRef Ref = 0

// RefFromIndex encodes a dense zero-based index as a stored reference.
func RefFromIndex(index int) Ref {
	return Ref(index + 1)
}

// IsNull reports whether the reference is absent.
func (r Ref) IsNull() bool {
	return r == NullRef
}

// Index returns the dense zero-based index the reference encodes. Only valid
// when !IsNull().
func (r Ref) Index() int {
	return int(r) - 1
}

// ShaderModuleCreateInfo describes a shader module: its SPIR-V code,
// byte-exact, and creation flags.
type ShaderModuleCreateInfo struct {
	Flags uint32
	Code  []byte
}

// SamplerCreateInfo mirrors VkSamplerCreateInfo.
type SamplerCreateInfo struct {
	Flags                   uint32
	MagFilter               core1_0.Filter
	MinFilter               core1_0.Filter
	MipmapMode              core1_0.SamplerMipmapMode
	AddressModeU            core1_0.SamplerAddressMode
	AddressModeV            core1_0.SamplerAddressMode
	AddressModeW            core1_0.SamplerAddressMode
	MipLodBias              float32
	AnisotropyEnable        bool
	MaxAnisotropy           float32
	CompareEnable           bool
	CompareOp               core1_0.CompareOp
	MinLod                  float32
	MaxLod                  float32
	BorderColor             core1_0.BorderColor
	UnnormalizedCoordinates bool
}

// DescriptorSetLayoutBinding is one binding slot of a set layout.
// ImmutableSamplers, when non-nil, must have DescriptorCount entries; entries
// may be NullHandle.
type DescriptorSetLayoutBinding struct {
	Binding           uint32
	DescriptorType    core1_0.DescriptorType
	DescriptorCount   uint32
	StageFlags        core1_0.ShaderStageFlags
	ImmutableSamplers []Handle
}

type DescriptorSetLayoutCreateInfo struct {
	Flags    uint32
	Bindings []DescriptorSetLayoutBinding
}

type PushConstantRange struct {
	StageFlags core1_0.ShaderStageFlags
	Offset     uint32
	Size       uint32
}

// PipelineLayoutCreateInfo mirrors VkPipelineLayoutCreateInfo. SetLayouts
// entries may be NullHandle.
type PipelineLayoutCreateInfo struct {
	Flags              uint32
	SetLayouts         []Handle
	PushConstantRanges []PushConstantRange
}

type AttachmentDescription struct {
	Flags          uint32
	Format         core1_0.Format
	Samples        core1_0.SampleCountFlags
	LoadOp         core1_0.AttachmentLoadOp
	StoreOp        core1_0.AttachmentStoreOp
	StencilLoadOp  core1_0.AttachmentLoadOp
	StencilStoreOp core1_0.AttachmentStoreOp
	InitialLayout  core1_0.ImageLayout
	FinalLayout    core1_0.ImageLayout
}

type SubpassDependency struct {
	SrcSubpass      uint32
	DstSubpass      uint32
	SrcStageMask    core1_0.PipelineStageFlags
	DstStageMask    core1_0.PipelineStageFlags
	SrcAccessMask   core1_0.AccessFlags
	DstAccessMask   core1_0.AccessFlags
	DependencyFlags uint32
}

// AttachmentReference points at an attachment of the enclosing render pass
// by position, not at another descriptor.
type AttachmentReference struct {
	Attachment uint32
	Layout     core1_0.ImageLayout
}

// SubpassDescription mirrors VkSubpassDescription. ResolveAttachments, when
// non-nil, must have len(ColorAttachments) entries.
type SubpassDescription struct {
	Flags                  uint32
	PipelineBindPoint      core1_0.PipelineBindPoint
	InputAttachments       []AttachmentReference
	ColorAttachments       []AttachmentReference
	ResolveAttachments     []AttachmentReference
	DepthStencilAttachment *AttachmentReference
	PreserveAttachments    []uint32
}

type RenderPassCreateInfo struct {
	Flags        uint32
	Attachments  []AttachmentDescription
	Dependencies []SubpassDependency
	Subpasses    []SubpassDescription
}

type SpecializationMapEntry struct {
	ConstantID uint32
	Offset     uint32
	Size       uint32
}

type SpecializationInfo struct {
	MapEntries []SpecializationMapEntry
	Data       []byte
}

// PipelineShaderStage mirrors VkPipelineShaderStageCreateInfo. Module refers
// to a registered shader module by handle.
type PipelineShaderStage struct {
	Flags              uint32
	Stage              core1_0.ShaderStageFlags
	Module             Handle
	Name               string
	SpecializationInfo *SpecializationInfo
}

type VertexInputAttribute struct {
	Location uint32
	Binding  uint32
	Format   core1_0.Format
	Offset   uint32
}

type VertexInputBinding struct {
	Binding   uint32
	Stride    uint32
	InputRate core1_0.VertexInputRate
}

type VertexInputState struct {
	Flags      uint32
	Bindings   []VertexInputBinding
	Attributes []VertexInputAttribute
}

type InputAssemblyState struct {
	Flags                  uint32
	Topology               core1_0.PrimitiveTopology
	PrimitiveRestartEnable bool
}

type TessellationState struct {
	Flags              uint32
	PatchControlPoints uint32
}

type Viewport struct {
	X        float32
	Y        float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

type Rect2D struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

// ViewportState carries explicit counts: when the viewport or scissor is
// dynamic the corresponding array may be nil while its count stays nonzero.
type ViewportState struct {
	Flags         uint32
	ViewportCount uint32
	ScissorCount  uint32
	Viewports     []Viewport
	Scissors      []Rect2D
}

type RasterizationState struct {
	Flags                   uint32
	DepthClampEnable        bool
	RasterizerDiscardEnable bool
	PolygonMode             core1_0.PolygonMode
	CullMode                core1_0.CullModeFlags
	FrontFace               core1_0.FrontFace
	DepthBiasEnable         bool
	DepthBiasConstantFactor float32
	DepthBiasClamp          float32
	DepthBiasSlopeFactor    float32
	LineWidth               float32
}

// MultisampleState mirrors VkPipelineMultisampleStateCreateInfo. SampleMask,
// when non-nil, has ceil(RasterizationSamples/32) words.
type MultisampleState struct {
	Flags                 uint32
	RasterizationSamples  core1_0.SampleCountFlags
	SampleShadingEnable   bool
	MinSampleShading      float32
	SampleMask            []uint32
	AlphaToCoverageEnable bool
	AlphaToOneEnable      bool
}

type StencilOpState struct {
	FailOp      core1_0.StencilOp
	PassOp      core1_0.StencilOp
	DepthFailOp core1_0.StencilOp
	CompareOp   core1_0.CompareOp
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

type DepthStencilState struct {
	Flags                 uint32
	DepthTestEnable       bool
	DepthWriteEnable      bool
	DepthCompareOp        core1_0.CompareOp
	DepthBoundsTestEnable bool
	StencilTestEnable     bool
	Front                 StencilOpState
	Back                  StencilOpState
	MinDepthBounds        float32
	MaxDepthBounds        float32
}

type ColorBlendAttachment struct {
	BlendEnable         bool
	SrcColorBlendFactor core1_0.BlendFactor
	DstColorBlendFactor core1_0.BlendFactor
	ColorBlendOp        core1_0.BlendOp
	SrcAlphaBlendFactor core1_0.BlendFactor
	DstAlphaBlendFactor core1_0.BlendFactor
	AlphaBlendOp        core1_0.BlendOp
	ColorWriteMask      core1_0.ColorComponentFlags
}

type ColorBlendState struct {
	Flags          uint32
	LogicOpEnable  bool
	LogicOp        core1_0.LogicOp
	Attachments    []ColorBlendAttachment
	BlendConstants [4]float32
}

type DynamicStateInfo struct {
	Flags         uint32
	DynamicStates []core1_0.DynamicState
}

// GraphicsPipelineCreateInfo mirrors VkGraphicsPipelineCreateInfo. Layout and
// RenderPass refer to registered descriptors; BasePipelineHandle, when not
// null, refers to a previously registered graphics pipeline.
type GraphicsPipelineCreateInfo struct {
	Flags              uint32
	Stages             []PipelineShaderStage
	VertexInput        *VertexInputState
	InputAssembly      *InputAssemblyState
	Tessellation       *TessellationState
	Viewport           *ViewportState
	Rasterization      *RasterizationState
	Multisample        *MultisampleState
	DepthStencil       *DepthStencilState
	ColorBlend         *ColorBlendState
	DynamicState       *DynamicStateInfo
	Layout             Handle
	RenderPass         Handle
	Subpass            uint32
	BasePipelineHandle Handle
	BasePipelineIndex  int32
}

// ComputePipelineCreateInfo mirrors VkComputePipelineCreateInfo.
type ComputePipelineCreateInfo struct {
	Flags              uint32
	Stage              PipelineShaderStage
	Layout             Handle
	BasePipelineHandle Handle
	BasePipelineIndex  int32
}
