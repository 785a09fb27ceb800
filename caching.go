package pipecache

// DeviceIdentity is an opaque value identifying the logical device on whose
// behalf a store call is made. The host store may use it for audit or
// routing; pipecache never interprets it.
type DeviceIdentity uint64

// CachingInterface is the boundary to an externally supplied key/value blob
// store. The actual persistence mechanism (disk, cross-process service,
// browser storage) is the embedder's business; reference implementations
// live in the store package.
//
// Both calls are synchronous and keyed by opaque byte strings.
// Implementations must be safe for concurrent use: one store instance is
// typically shared by every device in the process.
type CachingInterface interface {
	// LoadData returns the value stored under key, or nil if the key is
	// unknown. Implementations must treat internal failures (I/O errors,
	// corruption) as absence and return nil; a load can never fail, only
	// miss. The returned slice is owned by the caller's PersistentCache
	// and must not be retained or mutated by the store after returning.
	LoadData(device DeviceIdentity, key []byte) []byte

	// StoreData writes value under key, best-effort. Returns false if the
	// value was not persisted (store full, I/O failure, policy). Callers
	// never see an error: a failed store just means a future miss.
	// value is non-empty; the zero-length guard sits above this interface.
	StoreData(device DeviceIdentity, key, value []byte) bool
}
