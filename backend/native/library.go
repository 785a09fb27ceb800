package native

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecache"
)

// RenderPipeline is a baked render pipeline together with the cache
// metadata the pipeline cache attaches to it.
type RenderPipeline struct {
	// Handle is the backend pipeline object. Nil for software-baked
	// pipelines in tests.
	Handle hal.RenderPipeline

	// Label is the debug name from the descriptor.
	Label string

	// FromLibrary reports whether the bake was served by a pipeline
	// library entry rather than a full compile.
	FromLibrary bool
}

// ComputePipeline is a baked compute pipeline together with its cache
// metadata.
type ComputePipeline struct {
	Handle hal.ComputePipeline

	Label string

	// FromLibrary reports whether the bake was served by a pipeline
	// library entry rather than a full compile.
	FromLibrary bool
}

// Baker creates pipelines from descriptors when no library entry can
// serve them. The pipeline cache never talks to the device directly; all
// creation goes through a Baker.
type Baker interface {
	BakeRenderPipeline(desc *RenderPipelineDescriptor) (*RenderPipeline, error)
	BakeComputePipeline(desc *ComputePipelineDescriptor) (*ComputePipeline, error)
}

// Library is a named collection of baked pipelines that can be serialized
// to a blob and rebuilt from one. It models the driver-level pipeline
// library objects some backends expose.
//
// Load returns ErrEntryNotFound when no entry matches; that is a miss,
// not a failure. Store returns ErrEntryExists when the name is already
// present; callers treat that as benign. After Destroy every method
// returns ErrLibraryDestroyed.
type Library interface {
	// LoadRenderPipeline bakes a pipeline from the named entry. The
	// descriptor must structurally match the one the entry was stored
	// with; a mismatch is reported as ErrEntryNotFound.
	LoadRenderPipeline(name string, desc *RenderPipelineDescriptor) (*RenderPipeline, error)

	// StoreRenderPipeline records the pipeline under name so later loads
	// with a matching descriptor hit.
	StoreRenderPipeline(name string, desc *RenderPipelineDescriptor, p *RenderPipeline) error

	// LoadComputePipeline bakes a compute pipeline from the named entry.
	LoadComputePipeline(name string, desc *ComputePipelineDescriptor) (*ComputePipeline, error)

	// StoreComputePipeline records the compute pipeline under name.
	StoreComputePipeline(name string, desc *ComputePipelineDescriptor, p *ComputePipeline) error

	// Serialize returns the library contents as a blob suitable for
	// seeding a future library on the same adapter. Returns nil when the
	// library is empty.
	Serialize() (*pipecache.Blob, error)

	// Len reports the number of stored entries.
	Len() int

	// Destroy releases the library. Idempotent.
	Destroy()
}

// LibraryBackend creates pipeline libraries. Backends without library
// support report Supported() == false and the pipeline cache degrades to
// pass-through creation.
type LibraryBackend interface {
	// Supported reports whether this backend can create libraries at all.
	Supported() bool

	// CreateLibrary builds a library, optionally seeded from a previously
	// serialized blob. A nil or empty seed creates an empty library. A
	// corrupt or incompatible seed is an error; callers fall back to an
	// empty library.
	CreateLibrary(seed *pipecache.Blob) (Library, error)
}

// softwareManifestVersion is bumped whenever the serialized layout
// changes. Version mismatches reject the whole seed.
const softwareManifestVersion = 1

const (
	entryKindRender  = 1
	entryKindCompute = 2
)

// softwareEntry is one serialized library entry. Payload carries nothing
// executable: matching is by descriptor hash, and the bake on a hit goes
// back through the baker.
type softwareEntry struct {
	Kind           uint8  `cbor:"1,keyasint"`
	DescriptorHash uint64 `cbor:"2,keyasint"`
	Label          string `cbor:"3,keyasint,omitempty"`
}

type softwareManifest struct {
	Version uint32                   `cbor:"1,keyasint"`
	Entries map[string]softwareEntry `cbor:"2,keyasint"`
}

// SoftwareBackend is a pipeline library backend implemented entirely in
// process. It mirrors driver libraries closely enough to exercise the
// full cache path on any device: entries are matched by name and
// descriptor hash, and hits are re-baked through the configured baker
// with FromLibrary set.
type SoftwareBackend struct {
	baker Baker
}

// NewSoftwareBackend returns a backend whose library hits bake through
// baker.
func NewSoftwareBackend(baker Baker) *SoftwareBackend {
	if baker == nil {
		panic("native: NewSoftwareBackend called with nil baker")
	}
	return &SoftwareBackend{baker: baker}
}

// Supported always reports true.
func (b *SoftwareBackend) Supported() bool { return true }

// CreateLibrary builds a software library, parsing seed as a CBOR
// manifest when present.
func (b *SoftwareBackend) CreateLibrary(seed *pipecache.Blob) (Library, error) {
	lib := &softwareLibrary{
		baker:   b.baker,
		entries: make(map[string]softwareEntry),
	}
	if seed == nil || seed.Size() == 0 {
		return lib, nil
	}

	var m softwareManifest
	if err := cbor.Unmarshal(seed.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("native: decode library seed: %w", err)
	}
	if m.Version != softwareManifestVersion {
		return nil, fmt.Errorf("native: library seed version %d, want %d",
			m.Version, softwareManifestVersion)
	}
	if m.Entries != nil {
		lib.entries = m.Entries
	}
	return lib, nil
}

type softwareLibrary struct {
	baker Baker

	mu        sync.Mutex
	entries   map[string]softwareEntry
	destroyed bool
}

// lookup returns the entry for name if it matches kind and hash.
func (l *softwareLibrary) lookup(name string, kind uint8, hash uint64) error {
	if l.destroyed {
		return ErrLibraryDestroyed
	}
	e, ok := l.entries[name]
	if !ok || e.Kind != kind || e.DescriptorHash != hash {
		return ErrEntryNotFound
	}
	return nil
}

func (l *softwareLibrary) insert(name string, e softwareEntry) error {
	if l.destroyed {
		return ErrLibraryDestroyed
	}
	if _, ok := l.entries[name]; ok {
		return ErrEntryExists
	}
	l.entries[name] = e
	return nil
}

func (l *softwareLibrary) LoadRenderPipeline(name string, desc *RenderPipelineDescriptor) (*RenderPipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	hash := desc.Hash()

	l.mu.Lock()
	err := l.lookup(name, entryKindRender, hash)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p, err := l.baker.BakeRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	p.FromLibrary = true
	return p, nil
}

func (l *softwareLibrary) StoreRenderPipeline(name string, desc *RenderPipelineDescriptor, p *RenderPipeline) error {
	if desc == nil {
		return ErrNilDescriptor
	}
	_ = p

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(name, softwareEntry{
		Kind:           entryKindRender,
		DescriptorHash: desc.Hash(),
		Label:          desc.Label,
	})
}

func (l *softwareLibrary) LoadComputePipeline(name string, desc *ComputePipelineDescriptor) (*ComputePipeline, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	hash := desc.Hash()

	l.mu.Lock()
	err := l.lookup(name, entryKindCompute, hash)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p, err := l.baker.BakeComputePipeline(desc)
	if err != nil {
		return nil, err
	}
	p.FromLibrary = true
	return p, nil
}

func (l *softwareLibrary) StoreComputePipeline(name string, desc *ComputePipelineDescriptor, p *ComputePipeline) error {
	if desc == nil {
		return ErrNilDescriptor
	}
	_ = p

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(name, softwareEntry{
		Kind:           entryKindCompute,
		DescriptorHash: desc.Hash(),
		Label:          desc.Label,
	})
}

func (l *softwareLibrary) Serialize() (*pipecache.Blob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return nil, ErrLibraryDestroyed
	}
	if len(l.entries) == 0 {
		return nil, nil
	}

	m := softwareManifest{
		Version: softwareManifestVersion,
		Entries: l.entries,
	}
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("native: encode library: %w", err)
	}
	return pipecache.NewBlob(data), nil
}

func (l *softwareLibrary) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *softwareLibrary) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed = true
	l.entries = nil
}
