package native

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecache"
)

// =============================================================================
// Test Helpers
// =============================================================================

// mockPipelineDevice records create calls and returns nil handles.
type mockPipelineDevice struct {
	shaderCreates    int
	shaderDestroys   int
	shaderLabels     []string
	lastRenderDesc   *hal.RenderPipelineDescriptor
	lastComputeDesc  *hal.ComputePipelineDescriptor
	createRenderErr  error
	createComputeErr error
}

func (d *mockPipelineDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.shaderCreates++
	d.shaderLabels = append(d.shaderLabels, desc.Label)
	return nil, nil //nolint:nilnil // Mock handle.
}

func (d *mockPipelineDevice) DestroyShaderModule(_ hal.ShaderModule) {
	d.shaderDestroys++
}

func (d *mockPipelineDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.lastRenderDesc = desc
	return nil, d.createRenderErr //nolint:nilnil // Mock handle.
}

func (d *mockPipelineDevice) DestroyRenderPipeline(_ hal.RenderPipeline) {}

func (d *mockPipelineDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	d.lastComputeDesc = desc
	return nil, d.createComputeErr //nolint:nilnil // Mock handle.
}

func (d *mockPipelineDevice) DestroyComputePipeline(_ hal.ComputePipeline) {}

// =============================================================================
// HALBaker Tests
// =============================================================================

func TestHALBakerRenderPipeline(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	desc := mockRenderDescriptor("tri", 1, 2)
	desc.Attachments.DepthStencilFormat = gputypes.TextureFormatDepth24PlusStencil8
	desc.DepthWriteEnabled = true

	p, err := baker.BakeRenderPipeline(desc)
	if err != nil {
		t.Fatalf("BakeRenderPipeline: %v", err)
	}
	if p.Label != "tri" || p.FromLibrary {
		t.Errorf("pipeline = %+v", p)
	}

	if device.shaderCreates != 2 {
		t.Errorf("shader creates = %d, want 2", device.shaderCreates)
	}
	if device.shaderDestroys != 2 {
		t.Errorf("transient modules not released, destroys = %d", device.shaderDestroys)
	}

	hd := device.lastRenderDesc
	if hd == nil {
		t.Fatal("device never saw a render descriptor")
	}
	if hd.Label != "tri" {
		t.Errorf("Label = %q", hd.Label)
	}
	if hd.Vertex.EntryPoint != "vs_main" {
		t.Errorf("vertex entry = %q", hd.Vertex.EntryPoint)
	}
	if len(hd.Vertex.Buffers) != 1 {
		t.Errorf("vertex buffers = %d, want 1", len(hd.Vertex.Buffers))
	}
	if hd.Fragment == nil {
		t.Fatal("fragment state missing")
	}
	if hd.Fragment.EntryPoint != "fs_main" {
		t.Errorf("fragment entry = %q", hd.Fragment.EntryPoint)
	}
	if len(hd.Fragment.Targets) != 1 {
		t.Fatalf("targets = %d, want 1", len(hd.Fragment.Targets))
	}
	if hd.Fragment.Targets[0].Format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("target format = %v", hd.Fragment.Targets[0].Format)
	}
	if hd.Fragment.Targets[0].WriteMask != gputypes.ColorWriteMaskAll {
		t.Errorf("write mask = %v", hd.Fragment.Targets[0].WriteMask)
	}
	if hd.DepthStencil == nil {
		t.Fatal("depth/stencil state missing")
	}
	if hd.DepthStencil.Format != gputypes.TextureFormatDepth24PlusStencil8 {
		t.Errorf("depth format = %v", hd.DepthStencil.Format)
	}
	if !hd.DepthStencil.DepthWriteEnabled {
		t.Error("depth writes lost")
	}
	if hd.Multisample.Count != 1 {
		t.Errorf("sample count = %d, want 1", hd.Multisample.Count)
	}
}

func TestHALBakerBlendState(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	// Additive blending, deliberately not a stock preset.
	desc := mockRenderDescriptor("glow", 1, 2)
	desc.BlendState = &BlendState{
		Color: BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: BlendComponent{
			SrcFactor: gputypes.BlendFactorZero,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
	}

	if _, err := baker.BakeRenderPipeline(desc); err != nil {
		t.Fatalf("BakeRenderPipeline: %v", err)
	}
	blend := device.lastRenderDesc.Fragment.Targets[0].Blend
	if blend == nil {
		t.Fatal("blend configuration dropped")
	}
	want := gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorZero,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
	}
	if *blend != want {
		t.Errorf("lowered blend = %+v, want %+v", *blend, want)
	}

	// No blend state means no blending, not a default.
	desc = mockRenderDescriptor("opaque", 1, 2)
	if _, err := baker.BakeRenderPipeline(desc); err != nil {
		t.Fatalf("BakeRenderPipeline: %v", err)
	}
	if device.lastRenderDesc.Fragment.Targets[0].Blend != nil {
		t.Error("nil blend state lowered to a non-nil configuration")
	}
}

func TestHALBakerPrimitiveState(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	desc := mockRenderDescriptor("mesh", 1, 2)
	desc.FrontFace = gputypes.FrontFaceCW
	desc.CullMode = gputypes.CullModeBack

	if _, err := baker.BakeRenderPipeline(desc); err != nil {
		t.Fatalf("BakeRenderPipeline: %v", err)
	}
	prim := device.lastRenderDesc.Primitive
	if prim.FrontFace != gputypes.FrontFaceCW {
		t.Errorf("FrontFace = %v, want %v", prim.FrontFace, gputypes.FrontFaceCW)
	}
	if prim.CullMode != gputypes.CullModeBack {
		t.Errorf("CullMode = %v, want %v", prim.CullMode, gputypes.CullModeBack)
	}
	if prim.Topology != gputypes.PrimitiveTopologyTriangleList {
		t.Errorf("Topology = %v", prim.Topology)
	}
}

func TestHALBakerDepthOnlyPipeline(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	desc := mockRenderDescriptor("shadow", 1, 2)
	desc.FragmentShader = nil
	desc.Attachments = &AttachmentState{
		DepthStencilFormat: gputypes.TextureFormatDepth24PlusStencil8,
		SampleCount:        1,
	}

	if _, err := baker.BakeRenderPipeline(desc); err != nil {
		t.Fatalf("BakeRenderPipeline: %v", err)
	}
	if device.shaderCreates != 1 {
		t.Errorf("shader creates = %d, want 1", device.shaderCreates)
	}
	if device.lastRenderDesc.Fragment != nil {
		t.Error("depth-only pipeline carries a fragment state")
	}
	if device.lastRenderDesc.DepthStencil == nil {
		t.Error("depth state missing")
	}
}

func TestHALBakerComputePipeline(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	p, err := baker.BakeComputePipeline(mockComputeDescriptor("reduce", 3))
	if err != nil {
		t.Fatalf("BakeComputePipeline: %v", err)
	}
	if p.Label != "reduce" {
		t.Errorf("label = %q", p.Label)
	}
	if device.lastComputeDesc == nil {
		t.Fatal("device never saw a compute descriptor")
	}
	if device.lastComputeDesc.Compute.EntryPoint != "main" {
		t.Errorf("entry = %q", device.lastComputeDesc.Compute.EntryPoint)
	}
	if device.shaderCreates != 1 || device.shaderDestroys != 1 {
		t.Errorf("module churn = %d/%d, want 1/1", device.shaderCreates, device.shaderDestroys)
	}
}

func TestHALBakerErrors(t *testing.T) {
	device := &mockPipelineDevice{}
	baker := NewHALBaker(device, nil)

	if _, err := baker.BakeRenderPipeline(nil); !errors.Is(err, ErrNilDescriptor) {
		t.Errorf("nil descriptor: err = %v", err)
	}
	if _, err := baker.BakeComputePipeline(nil); !errors.Is(err, ErrNilDescriptor) {
		t.Errorf("nil compute descriptor: err = %v", err)
	}

	noVertex := mockRenderDescriptor("p", 1, 2)
	noVertex.VertexShader = nil
	if _, err := baker.BakeRenderPipeline(noVertex); !errors.Is(err, ErrNilShader) {
		t.Errorf("nil vertex shader: err = %v", err)
	}

	// Unaligned bytecode fails at realization, before any device call.
	bad := mockRenderDescriptor("p", 1, 2)
	bad.VertexShader = &CompiledShader{
		Bytecode: pipecache.NewBlob([]byte{1, 2, 3}),
		digest:   digestBytes([]byte{1, 2, 3}),
	}
	if _, err := baker.BakeRenderPipeline(bad); err == nil {
		t.Error("unaligned bytecode accepted")
	}
	if device.shaderCreates != 0 {
		t.Error("realization failure still created a module")
	}
}
