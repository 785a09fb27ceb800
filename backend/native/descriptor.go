package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipecache"
)

// ShaderStage identifies the single pipeline stage a shader entry point is
// compiled for. The numeric values are part of the persistent shader cache
// key layout and must not be reordered.
type ShaderStage uint32

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

// String returns the stage name for logging.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// RenderPipelineDescriptor describes a render pipeline to create.
//
// It captures the pipeline state that affects baked output; every field
// except Label is folded into the descriptor fingerprint, so two
// descriptors with equal fingerprints describe interchangeable pipelines.
type RenderPipelineDescriptor struct {
	// Label is an optional debug name. Not fingerprinted: it does not
	// influence the baked pipeline.
	Label string

	// VertexShader is the compiled vertex stage.
	VertexShader *CompiledShader

	// VertexEntryPoint is the vertex shader entry point function name.
	VertexEntryPoint string

	// FragmentShader is the compiled fragment stage (optional for
	// depth-only pipelines).
	FragmentShader *CompiledShader

	// FragmentEntryPoint is the fragment shader entry point function name.
	FragmentEntryPoint string

	// VertexBufferLayouts describes the vertex buffer layouts.
	VertexBufferLayouts []gputypes.VertexBufferLayout

	// PrimitiveTopology is the primitive type (triangles, lines, points).
	PrimitiveTopology gputypes.PrimitiveTopology

	// FrontFace defines which face is considered front-facing.
	FrontFace gputypes.FrontFace

	// CullMode defines which faces to cull.
	CullMode gputypes.CullMode

	// Attachments is the interned attachment-state blueprint (color and
	// depth formats plus sample count). See AttachmentStateCache.
	Attachments *AttachmentState

	// DepthWriteEnabled enables depth buffer writes.
	DepthWriteEnabled bool

	// DepthCompare is the depth comparison function.
	DepthCompare gputypes.CompareFunction

	// BlendState is the color blending configuration (optional).
	// Nil means no blending (source replaces destination).
	BlendState *BlendState
}

// BlendState describes how fragment output is combined with the
// destination attachment.
type BlendState struct {
	// Color is the RGB blending configuration.
	Color BlendComponent

	// Alpha is the alpha blending configuration.
	Alpha BlendComponent
}

// BlendComponent describes a blend component (color or alpha).
type BlendComponent struct {
	// SrcFactor is the source blend factor.
	SrcFactor gputypes.BlendFactor

	// DstFactor is the destination blend factor.
	DstFactor gputypes.BlendFactor

	// Operation combines the weighted source and destination.
	Operation gputypes.BlendOperation
}

// Fingerprint records every output-affecting field in a fixed order.
func (d *RenderPipelineDescriptor) Fingerprint(r *pipecache.Recorder) {
	recordShader(r, d.VertexShader)
	r.RecordString(d.VertexEntryPoint)
	recordShader(r, d.FragmentShader)
	r.RecordString(d.FragmentEntryPoint)

	r.RecordUint32(uint32(len(d.VertexBufferLayouts)))
	for i := range d.VertexBufferLayouts {
		layout := &d.VertexBufferLayouts[i]
		r.RecordUint64(layout.ArrayStride)
		r.RecordUint32(uint32(layout.StepMode))
		r.RecordUint32(uint32(len(layout.Attributes)))
		for j := range layout.Attributes {
			attr := &layout.Attributes[j]
			r.RecordUint32(attr.ShaderLocation)
			r.RecordUint32(uint32(attr.Format))
			r.RecordUint64(attr.Offset)
		}
	}

	r.RecordUint32(uint32(d.PrimitiveTopology))
	r.RecordUint32(uint32(d.FrontFace))
	r.RecordUint32(uint32(d.CullMode))

	if d.Attachments != nil {
		r.RecordBool(true)
		r.RecordObject(d.Attachments)
	} else {
		r.RecordBool(false)
	}

	r.RecordBool(d.DepthWriteEnabled)
	r.RecordUint32(uint32(d.DepthCompare))

	if d.BlendState != nil {
		r.RecordBool(true)
		recordBlendComponent(r, &d.BlendState.Color)
		recordBlendComponent(r, &d.BlendState.Alpha)
	} else {
		r.RecordBool(false)
	}
}

// Hash computes the structural descriptor hash used as the library entry
// name. Equal descriptors always hash equally across processes.
func (d *RenderPipelineDescriptor) Hash() uint64 {
	r := pipecache.NewRecorder()
	d.Fingerprint(r)
	return r.Key()
}

func recordBlendComponent(r *pipecache.Recorder, c *BlendComponent) {
	r.RecordUint32(uint32(c.SrcFactor))
	r.RecordUint32(uint32(c.DstFactor))
	r.RecordUint32(uint32(c.Operation))
}

// ComputePipelineDescriptor describes a compute pipeline to create.
type ComputePipelineDescriptor struct {
	// Label is an optional debug name. Not fingerprinted.
	Label string

	// ComputeShader is the compiled compute stage.
	ComputeShader *CompiledShader

	// EntryPoint is the compute shader entry point function name.
	EntryPoint string
}

// Fingerprint records the compute stage content and entry point.
func (d *ComputePipelineDescriptor) Fingerprint(r *pipecache.Recorder) {
	recordShader(r, d.ComputeShader)
	r.RecordString(d.EntryPoint)
}

// Hash computes the structural descriptor hash used as the library entry
// name.
func (d *ComputePipelineDescriptor) Hash() uint64 {
	r := pipecache.NewRecorder()
	d.Fingerprint(r)
	return r.Key()
}

// recordShader folds a compiled shader's bytecode digest into the
// fingerprint. The digest is content-derived, never an object identity.
func recordShader(r *pipecache.Recorder, s *CompiledShader) {
	if s == nil {
		r.RecordUint64(0)
		return
	}
	r.RecordUint64(s.BytecodeDigest())
}
