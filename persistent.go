package pipecache

// StoreFunc persists an artifact's bytes under the key the enclosing
// GetOrCreate transaction is bound to. It reports whether the bytes were
// accepted by the backing store.
type StoreFunc func(data []byte) bool

// CreateFunc produces the real, expensive artifact on a cache miss. It may
// call store zero or one times with the artifact's bytes; not calling it
// means the result is deliberately not persisted (for example, a debug
// compile whose output is not reproducible).
type CreateFunc func(store StoreFunc) error

// PersistentCache is the per-device façade over a CachingInterface.
//
// It is a pure pass-through plus the load-or-create transaction: it holds no
// blob state of its own, is created at device initialization, and is
// destroyed with the device. The backing store may be nil, which is the
// fully supported "no persistence" mode: loads miss, stores no-op, and
// every GetOrCreate runs its create function.
//
// All failure modes of the backing store are folded into absence. The only
// condition treated as a programming error is storing zero-length data,
// which would poison the store with an entry indistinguishable from a miss.
type PersistentCache struct {
	device DeviceIdentity
	store  CachingInterface
}

// NewPersistentCache creates the cache façade for one logical device.
// store may be nil to disable persistence.
func NewPersistentCache(device DeviceIdentity, store CachingInterface) *PersistentCache {
	return &PersistentCache{device: device, store: store}
}

// Enabled reports whether a backing store is configured. Callers needing to
// decide between "join the shared registry" and "run private" use this; the
// load/store primitives themselves behave sensibly either way.
func (pc *PersistentCache) Enabled() bool {
	return pc.store != nil
}

// Device returns the identity this cache passes to the backing store.
func (pc *PersistentCache) Device() DeviceIdentity {
	return pc.device
}

// LoadData returns the blob previously stored under key, or nil on a miss.
// "No backing store configured" and "key unknown" are the same observable
// outcome; neither is an error.
func (pc *PersistentCache) LoadData(key CacheKey) *Blob {
	if pc.store == nil {
		return nil
	}
	data := pc.store.LoadData(pc.device, key)
	if len(data) == 0 {
		return nil
	}
	// The CachingInterface contract hands us ownership of the slice.
	blob := blobFromOwned(data)
	Logger().Debug("pipecache: load", "key", key.String(), "size", blob.Size())
	return blob
}

// StoreData writes data under key, best-effort. It no-ops silently when no
// backing store is configured. Storing zero-length data is a caller error
// and panics: a zero-length entry could never be loaded back.
func (pc *PersistentCache) StoreData(key CacheKey, data []byte) {
	if len(data) == 0 {
		panic("pipecache: StoreData called with zero-length data")
	}
	if pc.store == nil {
		return
	}
	if !pc.store.StoreData(pc.device, key, data) {
		Logger().Warn("pipecache: store rejected", "key", key.String(), "size", len(data))
		return
	}
	Logger().Debug("pipecache: store", "key", key.String(), "size", len(data))
}

// GetOrCreate is the central cache transaction.
//
// It first attempts LoadData(key); on a hit the loaded blob is returned and
// create is never invoked. On a miss, create runs with a store callback
// bound to key. After create returns, the key is loaded again and whatever
// is found is returned — nil if create chose not to store. Reloading rather
// than returning create's in-flight bytes guarantees hit and miss paths
// hand back a blob that went through the identical decode/ownership path,
// so callers cannot come to depend on a shape only one path produces.
//
// Errors from create are the caller's own (compiler failures and the like)
// and propagate unchanged. Backing-store trouble never surfaces here.
func (pc *PersistentCache) GetOrCreate(key CacheKey, create CreateFunc) (*Blob, error) {
	if blob := pc.LoadData(key); blob != nil {
		return blob, nil
	}

	stored := false
	doStore := func(data []byte) bool {
		if len(data) == 0 {
			panic("pipecache: store callback called with zero-length data")
		}
		if pc.store == nil {
			return false
		}
		ok := pc.store.StoreData(pc.device, key, data)
		stored = stored || ok
		return ok
	}

	if err := create(doStore); err != nil {
		return nil, err
	}
	if !stored {
		return nil, nil
	}
	return pc.LoadData(key), nil
}
