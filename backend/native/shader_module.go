package native

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecache"
)

// Compiler translates WGSL source into SPIR-V bytecode. It is the expensive
// step the shader cache exists to avoid. The default implementation is
// gogpu/naga; tests substitute deterministic stand-ins.
type Compiler interface {
	Compile(source string) ([]byte, error)
}

// NagaCompiler compiles WGSL through gogpu/naga.
type NagaCompiler struct{}

// Compile implements Compiler.
func (NagaCompiler) Compile(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("native: compile shader: %w", err)
	}
	return spirv, nil
}

// ShaderDevice is the subset of hal.Device needed to realize compiled
// bytecode as a live shader module.
type ShaderDevice interface {
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(m hal.ShaderModule)
}

// ShaderModule holds shading-language source plus its compile-cache
// integration. One module may expose several entry points across stages;
// each (entry point, stage) pair compiles and caches independently.
type ShaderModule struct {
	// source is the canonicalized WGSL text.
	source string

	// spirv holds the original binary words when the module was created
	// from SPIR-V rather than WGSL. Part of the cache key either way.
	spirv []uint32

	label string
}

// NewShaderModule creates a module from WGSL source.
func NewShaderModule(label, source string) *ShaderModule {
	return &ShaderModule{label: label, source: source}
}

// NewShaderModuleFromSPIRV creates a module from precompiled SPIR-V words.
func NewShaderModuleFromSPIRV(label string, words []uint32) *ShaderModule {
	spirv := append([]uint32(nil), words...)
	return &ShaderModule{label: label, spirv: spirv}
}

// Label returns the module's debug label.
func (m *ShaderModule) Label() string { return m.label }

// CacheKey builds the persistent shader cache key for one entry point of
// one stage.
//
// Layout, fixed: UTF8(source) || hex(word)... || uint32_le(stage) ||
// UTF8(entryPoint). The layout is part of the persisted-store interop
// contract; changing it orphans every previously stored shader. Entry point
// and stage both participate so that two entry points in one module, or one
// entry point compiled for two stages, never collide.
func (m *ShaderModule) CacheKey(entryPoint string, stage ShaderStage) pipecache.CacheKey {
	key := make([]byte, 0, len(m.source)+8*len(m.spirv)+4+len(entryPoint))
	key = append(key, m.source...)
	for _, word := range m.spirv {
		key = strconv.AppendUint(key, uint64(word), 16)
	}
	key = binary.LittleEndian.AppendUint32(key, uint32(stage))
	key = append(key, entryPoint...)
	return key
}

// CompileOptions selects the compiler and the debug-divergence behavior.
type CompileOptions struct {
	// Compiler translates source on a cache miss. Nil selects NagaCompiler.
	Compiler Compiler

	// DebugInstrumentation marks this compile as debug-instrumented.
	// Debug bytecode embeds non-reproducible metadata, so a freshly
	// regenerated debug shader disqualifies the resulting pipeline from
	// the pipeline-level cache (see CompiledShader.UsePipelineCache).
	DebugInstrumentation bool

	// DisableCache skips persisting freshly compiled bytecode. Lookups
	// still happen; only the store side is suppressed.
	DisableCache bool
}

// CompiledShader is the result of a cached or fresh shader compilation.
type CompiledShader struct {
	// Bytecode is the SPIR-V artifact, shared and immutable.
	Bytecode *pipecache.Blob

	// FromCache reports whether the bytecode came from the persistent
	// cache rather than a fresh compile. Exposed for diagnostics and
	// tests.
	FromCache bool

	// UsePipelineCache reports whether downstream pipeline creation may
	// consult the pipeline-level cache. True unless this compile
	// regenerated bytecode while debug instrumentation was active: the
	// vendor library matches pipelines by exact bytecode bytes, and
	// non-reproducible debug bytes would always miss while bloating the
	// library.
	UsePipelineCache bool

	digest uint64
}

// BytecodeDigest returns a content digest of the bytecode, used when
// folding the shader into pipeline descriptor fingerprints.
func (s *CompiledShader) BytecodeDigest() uint64 {
	return s.digest
}

// Realize creates a live hal shader module from the compiled bytecode.
func (s *CompiledShader) Realize(device ShaderDevice, label string) (hal.ShaderModule, error) {
	words, err := spirvWords(s.Bytecode.Bytes())
	if err != nil {
		return nil, err
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
}

// Compile returns the native bytecode for one entry point of one stage,
// from the persistent cache when possible.
//
// On a miss the real compiler runs and, unless opts.DisableCache is set,
// the fresh bytecode is stored through the cache's store callback. The
// returned artifact is identical either way; FromCache distinguishes the
// paths for callers that care (hit counting, the debug rule above).
func (m *ShaderModule) Compile(
	pc *pipecache.PersistentCache,
	entryPoint string,
	stage ShaderStage,
	opts CompileOptions,
) (*CompiledShader, error) {
	if pc == nil {
		return nil, ErrNilPersistentCache
	}
	if m.source == "" && len(m.spirv) == 0 {
		return nil, ErrNilShader
	}

	compiler := opts.Compiler
	if compiler == nil {
		compiler = NagaCompiler{}
	}

	key := m.CacheKey(entryPoint, stage)

	var fresh []byte
	blob, err := pc.GetOrCreate(key, func(store pipecache.StoreFunc) error {
		bytecode, err := m.translate(compiler)
		if err != nil {
			return err
		}
		fresh = bytecode
		if !opts.DisableCache {
			store(bytecode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fromCache := fresh == nil
	if blob == nil {
		// The compile ran but chose not to persist (or the store refused);
		// hand the in-flight bytes through the same immutable shape.
		blob = pipecache.NewBlob(fresh)
	}

	shader := &CompiledShader{
		Bytecode:         blob,
		FromCache:        fromCache,
		UsePipelineCache: fromCache || !opts.DebugInstrumentation,
		digest:           digestBytes(blob.Bytes()),
	}

	pipecache.Logger().Debug("native: shader compile",
		"label", m.label, "entry", entryPoint, "stage", stage.String(),
		"fromCache", fromCache, "size", blob.Size())
	return shader, nil
}

// translate runs the real source-to-bytecode translation.
func (m *ShaderModule) translate(compiler Compiler) ([]byte, error) {
	if len(m.spirv) > 0 {
		// Already binary: serialize the words back to the byte form the
		// cache and hal consume.
		out := make([]byte, 4*len(m.spirv))
		for i, word := range m.spirv {
			binary.LittleEndian.PutUint32(out[4*i:], word)
		}
		return out, nil
	}
	return compiler.Compile(m.source)
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("native: SPIR-V byte length %d is not word-aligned", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return words, nil
}

// digestBytes computes the content digest used by descriptor fingerprints.
func digestBytes(data []byte) uint64 {
	r := pipecache.NewRecorder()
	r.RecordBytes(data)
	return r.Key()
}
