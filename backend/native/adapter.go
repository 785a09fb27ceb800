package native

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"

	"github.com/gogpu/pipecache"
)

// AdapterIdentity identifies the hardware and driver a pipeline binary is
// valid for. Cached pipelines are only ever replayed on the adapter that
// produced them; the identity is folded into every adapter-scoped cache
// key so a driver update or a GPU swap silently orphans stale entries
// instead of feeding them back to the driver.
type AdapterIdentity struct {
	// VendorID is the PCI vendor identifier.
	VendorID uint32

	// DeviceID is the PCI device identifier.
	DeviceID uint32

	// SubsystemID further distinguishes board variants. Informational;
	// not part of the cache key.
	SubsystemID uint32

	// PipelineCacheUUID is the driver-reported cache compatibility UUID.
	// Drivers change it whenever their binary format does.
	PipelineCacheUUID uuid.UUID
}

// CacheKey builds the adapter-scoped key prefix.
//
// Layout, fixed: hex(deviceID) || hex(vendorID) || hex(uuidWord)... with
// the UUID read as four little-endian 32-bit words. The layout is part of
// the persisted-store interop contract.
func (id AdapterIdentity) CacheKey() pipecache.CacheKey {
	key := make([]byte, 0, 48)
	key = strconv.AppendUint(key, uint64(id.DeviceID), 16)
	key = strconv.AppendUint(key, uint64(id.VendorID), 16)
	for i := 0; i < len(id.PipelineCacheUUID); i += 4 {
		word := binary.LittleEndian.Uint32(id.PipelineCacheUUID[i : i+4])
		key = strconv.AppendUint(key, uint64(word), 16)
	}
	return key
}

// Adapter owns the cache state shared by every device created on one
// physical adapter: the pipeline cache registry, the attachment blueprint
// pool, and the backing persistent store.
//
// Thread Safety:
// Adapter is safe for concurrent use; each owned component synchronizes
// itself and the Adapter fields are immutable after construction.
type Adapter struct {
	identity AdapterIdentity

	// store backs every persistent cache handed out for this adapter.
	// Nil disables persistence.
	store pipecache.CachingInterface

	registry    *CacheRegistry
	attachments *AttachmentStateCache
}

// NewAdapter creates the cache state for one adapter. store may be nil
// when the host embedder provides no persistence.
func NewAdapter(identity AdapterIdentity, store pipecache.CachingInterface) *Adapter {
	return &Adapter{
		identity:    identity,
		store:       store,
		registry:    NewCacheRegistry(),
		attachments: NewAttachmentStateCache(),
	}
}

// Identity returns the adapter identity.
func (a *Adapter) Identity() AdapterIdentity { return a.identity }

// Registry returns the adapter's shared pipeline cache registry.
func (a *Adapter) Registry() *CacheRegistry { return a.registry }

// AttachmentStates returns the adapter's attachment blueprint pool.
func (a *Adapter) AttachmentStates() *AttachmentStateCache { return a.attachments }

// PersistentCache returns a device-scoped persistent cache over the
// adapter's store. With no store configured the cache is disabled but
// still usable: loads miss and stores drop.
func (a *Adapter) PersistentCache(device pipecache.DeviceIdentity) *pipecache.PersistentCache {
	return pipecache.NewPersistentCache(device, a.store)
}

// pipelineLibraryKeySuffix separates the serialized library entry from
// shader entries sharing the adapter prefix.
const pipelineLibraryKeySuffix = "/pipeline-library"

// PipelineLibraryKey returns the cache key the adapter's serialized
// pipeline library is stored under.
func (a *Adapter) PipelineLibraryKey() pipecache.CacheKey {
	return append(a.identity.CacheKey(), pipelineLibraryKeySuffix...)
}

// GetOrCreatePipelineCache returns the shared pipeline cache for a device
// on this adapter, creating and seeding it on first use.
//
// Devices whose persisted library blobs are byte-equal share one
// underlying cache (in practice: every device of the adapter, since the
// blob is stored under one adapter-scoped key). The returned handle holds
// one reference; release it when the device goes away.
func (a *Adapter) GetOrCreatePipelineCache(
	device pipecache.DeviceIdentity,
	backend LibraryBackend,
	baker Baker,
) (*SharedPipelineCache, error) {
	pc := a.PersistentCache(device)
	key := a.PipelineLibraryKey()
	seed := pc.LoadData(key)

	return a.registry.GetOrCreate(seed, func(_ *pipecache.Blob) (*PipelineCache, error) {
		cache := NewPipelineCache(PipelineCacheConfig{
			Persistent: pc,
			Key:        key,
			Backend:    backend,
			Baker:      baker,
		})
		cache.Initialize()
		return cache, nil
	})
}
