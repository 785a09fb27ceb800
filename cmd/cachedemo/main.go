// Command cachedemo exercises the pipeline and shader cache end to end
// against a disk-backed store. Run it twice: the first run compiles cold
// and populates the store, the second run services everything from cache.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipecache"
	"github.com/gogpu/pipecache/backend/native"
	"github.com/gogpu/pipecache/store"
)

const vertexWGSL = `
@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}
`

const fragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.5, 0.0, 1.0);
}
`

func main() {
	var (
		cacheDir = flag.String("cache-dir", ".pipecache", "on-disk cache directory")
		debug    = flag.Bool("debug", false, "compile with debug instrumentation")
	)
	flag.Parse()

	disk, err := store.OpenDisk(*cacheDir)
	if err != nil {
		log.Fatalf("Failed to open cache dir: %v", err)
	}
	defer disk.Close()

	adapter := native.NewAdapter(native.AdapterIdentity{
		VendorID:          0x10de,
		DeviceID:          0x2684,
		PipelineCacheUUID: uuid.MustParse("8f2c3a10-5b7e-4d94-9c21-d6f08a6b4e35"),
	}, disk)

	const device pipecache.DeviceIdentity = 1
	pc := adapter.PersistentCache(device)

	// Shader level: compile each stage through the persistent cache.
	start := time.Now()
	opts := native.CompileOptions{DebugInstrumentation: *debug}

	vsModule := native.NewShaderModule("demo_vs", vertexWGSL)
	vs, err := vsModule.Compile(pc, "vs_main", native.StageVertex, opts)
	if err != nil {
		log.Fatalf("Failed to compile vertex shader: %v", err)
	}

	fsModule := native.NewShaderModule("demo_fs", fragmentWGSL)
	fs, err := fsModule.Compile(pc, "fs_main", native.StageFragment, opts)
	if err != nil {
		log.Fatalf("Failed to compile fragment shader: %v", err)
	}

	log.Printf("Shaders ready in %v (vertex fromCache=%v, fragment fromCache=%v)",
		time.Since(start).Round(time.Microsecond), vs.FromCache, fs.FromCache)

	// Pipeline level: share one cache across the adapter's devices and
	// back it with the software library so bakes survive restarts.
	baker := demoBaker{}
	shared, err := adapter.GetOrCreatePipelineCache(device,
		native.NewSoftwareBackend(baker), baker)
	if err != nil {
		log.Fatalf("Failed to create pipeline cache: %v", err)
	}
	defer func() {
		if err := shared.Release(); err != nil {
			log.Printf("Release: %v", err)
		}
	}()

	desc := &native.RenderPipelineDescriptor{
		Label:              "demo_triangle",
		VertexShader:       vs,
		VertexEntryPoint:   "vs_main",
		FragmentShader:     fs,
		FragmentEntryPoint: "fs_main",
		PrimitiveTopology:  gputypes.PrimitiveTopologyTriangleList,
		CullMode:           gputypes.CullModeNone,
		Attachments: adapter.AttachmentStates().GetOrCreate(&native.AttachmentState{
			ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm},
			SampleCount:  1,
		}),
	}

	allowCache := vs.UsePipelineCache && fs.UsePipelineCache
	start = time.Now()
	pipeline, err := shared.Cache().GetOrCreateRenderPipeline(desc, allowCache)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	log.Printf("Pipeline %q ready in %v (fromLibrary=%v)",
		pipeline.Label, time.Since(start).Round(time.Microsecond), pipeline.FromLibrary)

	if err := shared.Cache().Flush(); err != nil {
		log.Fatalf("Failed to flush pipeline library: %v", err)
	}

	log.Printf("Pipeline cache: %d hits, %d misses, %d live entries",
		shared.Cache().HitCount(), shared.Cache().MissCount(), shared.Cache().Len())
}

// demoBaker stands in for a HAL-backed baker; without a live GPU the demo
// tracks cache behavior only. Hosts with a device use native.NewHALBaker.
type demoBaker struct{}

func (demoBaker) BakeRenderPipeline(desc *native.RenderPipelineDescriptor) (*native.RenderPipeline, error) {
	return &native.RenderPipeline{Label: desc.Label}, nil
}

func (demoBaker) BakeComputePipeline(desc *native.ComputePipelineDescriptor) (*native.ComputePipeline, error) {
	return &native.ComputePipeline{Label: desc.Label}, nil
}
