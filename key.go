package pipecache

import (
	"bytes"
	"encoding/hex"
)

// CacheKey is an opaque, deterministic byte sequence used to look up a Blob
// in a persistent store.
//
// A key is the ordered concatenation of the fields that were recorded to
// produce it; there is no structure beyond that. Equality is bytewise.
// Two logically-identical lookups must produce byte-identical keys, which
// is why keys are built only from content (source text, bytecode words,
// enum values, adapter identity) and never from process-local state such
// as pointers or object IDs.
//
// Key construction for the shader and pipeline-library caches lives in
// backend/native next to its users; see native.ShaderModule.CacheKey and
// native.AdapterIdentity.CacheKey for the exact layouts.
type CacheKey []byte

// Equal reports whether two keys are bytewise identical.
func (k CacheKey) Equal(other CacheKey) bool {
	return bytes.Equal(k, other)
}

// Clone returns an owned copy of the key.
func (k CacheKey) Clone() CacheKey {
	out := make(CacheKey, len(k))
	copy(out, k)
	return out
}

// String renders the key as lowercase hex for logging and diagnostics.
// The rendering is not part of the persisted format.
func (k CacheKey) String() string {
	return hex.EncodeToString(k)
}
