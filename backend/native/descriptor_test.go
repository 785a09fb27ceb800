package native

import (
	"testing"

	"github.com/gogpu/gputypes"
)

// =============================================================================
// Descriptor Hash Tests
// =============================================================================

func TestRenderDescriptorHashDeterministic(t *testing.T) {
	d1 := mockRenderDescriptor("a", 1, 2)
	d2 := mockRenderDescriptor("b", 1, 2) // label differs only

	if d1.Hash() != d2.Hash() {
		t.Error("label changed the descriptor hash")
	}
	if d1.Hash() != d1.Hash() {
		t.Error("hash is not stable across calls")
	}
}

func TestRenderDescriptorHashFieldSensitivity(t *testing.T) {
	base := mockRenderDescriptor("p", 1, 2)
	baseHash := base.Hash()

	mutations := map[string]func(d *RenderPipelineDescriptor){
		"vertex shader": func(d *RenderPipelineDescriptor) {
			d.VertexShader = mockCompiledShader(9)
		},
		"fragment shader": func(d *RenderPipelineDescriptor) {
			d.FragmentShader = mockCompiledShader(9)
		},
		"vertex entry point": func(d *RenderPipelineDescriptor) {
			d.VertexEntryPoint = "other"
		},
		"fragment entry point": func(d *RenderPipelineDescriptor) {
			d.FragmentEntryPoint = "other"
		},
		"vertex stride": func(d *RenderPipelineDescriptor) {
			d.VertexBufferLayouts[0].ArrayStride = 16
		},
		"attribute location": func(d *RenderPipelineDescriptor) {
			d.VertexBufferLayouts[0].Attributes[0].ShaderLocation = 3
		},
		"cull mode": func(d *RenderPipelineDescriptor) {
			d.CullMode = gputypes.CullMode(2)
		},
		"depth write": func(d *RenderPipelineDescriptor) {
			d.DepthWriteEnabled = !d.DepthWriteEnabled
		},
		"attachment format": func(d *RenderPipelineDescriptor) {
			d.Attachments = &AttachmentState{
				ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatDepth24PlusStencil8},
				SampleCount:  1,
			}
		},
		"sample count": func(d *RenderPipelineDescriptor) {
			d.Attachments = &AttachmentState{
				ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
				SampleCount:  4,
			}
		},
		"no attachments": func(d *RenderPipelineDescriptor) {
			d.Attachments = nil
		},
		"blend state": func(d *RenderPipelineDescriptor) {
			d.BlendState = &BlendState{
				Color: BlendComponent{SrcFactor: gputypes.BlendFactor(1)},
			}
		},
	}

	for name, mutate := range mutations {
		d := mockRenderDescriptor("p", 1, 2)
		mutate(d)
		if d.Hash() == baseHash {
			t.Errorf("%s: mutation did not change the hash", name)
		}
	}
}

func TestComputeDescriptorHash(t *testing.T) {
	d1 := mockComputeDescriptor("a", 1)
	d2 := mockComputeDescriptor("b", 1)
	if d1.Hash() != d2.Hash() {
		t.Error("label changed the compute descriptor hash")
	}

	d3 := mockComputeDescriptor("a", 2)
	if d1.Hash() == d3.Hash() {
		t.Error("different shader digests hashed equally")
	}

	d4 := mockComputeDescriptor("a", 1)
	d4.EntryPoint = "other"
	if d1.Hash() == d4.Hash() {
		t.Error("different entry points hashed equally")
	}
}

func TestRenderAndComputeHashesDisjoint(t *testing.T) {
	// A depth-only render descriptor and a compute descriptor with the
	// same shader digest must not collide on the library name.
	r := &RenderPipelineDescriptor{
		VertexShader:     mockCompiledShader(1),
		VertexEntryPoint: "main",
	}
	c := &ComputePipelineDescriptor{
		ComputeShader: mockCompiledShader(1),
		EntryPoint:    "main",
	}
	if r.Hash() == c.Hash() {
		t.Error("render and compute descriptors share a hash")
	}
}

func TestLibraryEntryName(t *testing.T) {
	if got := libraryEntryName(42); got != "42" {
		t.Errorf("libraryEntryName(42) = %q, want %q", got, "42")
	}
	if got := libraryEntryName(18446744073709551615); got != "18446744073709551615" {
		t.Errorf("max uint64 name = %q", got)
	}
}

// =============================================================================
// AttachmentState Interning Tests
// =============================================================================

func TestAttachmentStateInterning(t *testing.T) {
	cache := NewAttachmentStateCache()

	template := &AttachmentState{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
		SampleCount:  4,
	}
	s1 := cache.GetOrCreate(template)
	s2 := cache.GetOrCreate(&AttachmentState{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
		SampleCount:  4,
	})

	if s1 != s2 {
		t.Error("equal blueprints interned to distinct instances")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}

	// The interned instance is a private copy with a memoized fingerprint.
	if s1 == template {
		t.Error("cache interned the caller's template instead of a copy")
	}
	if _, ok := s1.FingerprintKey(); !ok {
		t.Error("interned blueprint has no memoized fingerprint")
	}

	s3 := cache.GetOrCreate(&AttachmentState{
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
		SampleCount:  1,
	})
	if s1 == s3 {
		t.Error("different sample counts interned together")
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}
}

func TestShaderStageString(t *testing.T) {
	cases := map[ShaderStage]string{
		StageVertex:      "vertex",
		StageFragment:    "fragment",
		StageCompute:     "compute",
		ShaderStage(255): "unknown",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Errorf("ShaderStage(%d).String() = %q, want %q", stage, got, want)
		}
	}
}
