package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PipelineDevice is the subset of hal.Device the baker needs: shader
// module realization plus pipeline creation.
type PipelineDevice interface {
	ShaderDevice
	CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error)
	DestroyRenderPipeline(p hal.RenderPipeline)
	CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error)
	DestroyComputePipeline(p hal.ComputePipeline)
}

// HALBaker bakes pipelines on a hal device. It realizes the compiled
// SPIR-V as transient shader modules, issues the device create call, and
// releases the modules again; the device keeps whatever it needs.
type HALBaker struct {
	device PipelineDevice
	layout hal.PipelineLayout
}

// NewHALBaker returns a baker that creates pipelines on device with the
// given pipeline layout.
func NewHALBaker(device PipelineDevice, layout hal.PipelineLayout) *HALBaker {
	if device == nil {
		panic("native: NewHALBaker called with nil device")
	}
	return &HALBaker{device: device, layout: layout}
}

// BakeRenderPipeline implements Baker.
func (b *HALBaker) BakeRenderPipeline(desc *RenderPipelineDescriptor) (*RenderPipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if desc.VertexShader == nil {
		return nil, ErrNilShader
	}

	vertexModule, err := desc.VertexShader.Realize(b.device, desc.Label+"_vs")
	if err != nil {
		return nil, fmt.Errorf("realize vertex shader: %w", err)
	}
	defer b.device.DestroyShaderModule(vertexModule)

	var fragment *hal.FragmentState
	if desc.FragmentShader != nil {
		fragmentModule, err := desc.FragmentShader.Realize(b.device, desc.Label+"_fs")
		if err != nil {
			return nil, fmt.Errorf("realize fragment shader: %w", err)
		}
		defer b.device.DestroyShaderModule(fragmentModule)

		fragment = &hal.FragmentState{
			Module:     fragmentModule,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    colorTargets(desc),
		}
	}

	sampleCount := uint32(1)
	if desc.Attachments != nil && desc.Attachments.SampleCount > 0 {
		sampleCount = desc.Attachments.SampleCount
	}

	handle, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: b.layout,
		Vertex: hal.VertexState{
			Module:     vertexModule,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    desc.VertexBufferLayouts,
		},
		Fragment: fragment,
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.PrimitiveTopology,
			FrontFace: desc.FrontFace,
			CullMode:  desc.CullMode,
		},
		DepthStencil: depthStencilState(desc),
		Multisample: gputypes.MultisampleState{
			Count: sampleCount,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}

	return &RenderPipeline{Handle: handle, Label: desc.Label}, nil
}

// BakeComputePipeline implements Baker.
func (b *HALBaker) BakeComputePipeline(desc *ComputePipelineDescriptor) (*ComputePipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if desc.ComputeShader == nil {
		return nil, ErrNilShader
	}

	module, err := desc.ComputeShader.Realize(b.device, desc.Label+"_cs")
	if err != nil {
		return nil, fmt.Errorf("realize compute shader: %w", err)
	}
	defer b.device.DestroyShaderModule(module)

	handle, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: b.layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}

	return &ComputePipeline{Handle: handle, Label: desc.Label}, nil
}

// colorTargets builds one color target per attachment format. Every
// target shares the descriptor's blend configuration and writes all
// channels.
func colorTargets(desc *RenderPipelineDescriptor) []gputypes.ColorTargetState {
	if desc.Attachments == nil {
		return nil
	}
	blend := halBlend(desc.BlendState)
	targets := make([]gputypes.ColorTargetState, len(desc.Attachments.ColorFormats))
	for i, format := range desc.Attachments.ColorFormats {
		targets[i] = gputypes.ColorTargetState{
			Format:    format,
			Blend:     blend,
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}
	return targets
}

// halBlend lowers the descriptor blend configuration field-for-field.
// Nil means blending disabled.
func halBlend(b *BlendState) *gputypes.BlendState {
	if b == nil {
		return nil
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: b.Color.SrcFactor,
			DstFactor: b.Color.DstFactor,
			Operation: b.Color.Operation,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: b.Alpha.SrcFactor,
			DstFactor: b.Alpha.DstFactor,
			Operation: b.Alpha.Operation,
		},
	}
}

// depthStencilState builds the depth/stencil configuration when the
// attachment blueprint declares a depth format. Stencil faces pass
// through untouched.
func depthStencilState(desc *RenderPipelineDescriptor) *hal.DepthStencilState {
	if desc.Attachments == nil ||
		desc.Attachments.DepthStencilFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	passThrough := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return &hal.DepthStencilState{
		Format:            desc.Attachments.DepthStencilFormat,
		DepthWriteEnabled: desc.DepthWriteEnabled,
		DepthCompare:      desc.DepthCompare,
		StencilFront:      passThrough,
		StencilBack:       passThrough,
		StencilReadMask:   0xFF,
		StencilWriteMask:  0xFF,
	}
}
