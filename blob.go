package pipecache

import "bytes"

// Blob is an immutable byte buffer, the unit of cache storage and retrieval.
//
// A Blob copies its contents on construction and never mutates them
// afterwards, so a single Blob may be handed to any number of readers
// without further copying. This is the shared-handle model: the hot hit
// path of PersistentCache returns the same Blob to every caller instead of
// duplicating the bytes per load.
//
// The zero value of *Blob (nil) means "absent". An empty but present blob
// does not exist in this model: stores of zero-length data are rejected at
// the PersistentCache boundary, so every live Blob has Size() > 0.
type Blob struct {
	data []byte
}

// NewBlob creates a Blob holding a private copy of data.
// Returns nil if data is empty, since an empty blob is indistinguishable
// from absence everywhere in the cache protocol.
func NewBlob(data []byte) *Blob {
	if len(data) == 0 {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Blob{data: buf}
}

// blobFromOwned wraps an already-private byte slice without copying.
// Callers must guarantee no other reference to data exists.
func blobFromOwned(data []byte) *Blob {
	if len(data) == 0 {
		return nil
	}
	return &Blob{data: data}
}

// Bytes returns the blob contents.
//
// The returned slice aliases the blob's internal buffer and MUST NOT be
// modified. Use Clone for an owned copy.
func (b *Blob) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Clone returns an owned copy of the blob contents.
func (b *Blob) Clone() []byte {
	if b == nil {
		return nil
	}
	buf := make([]byte, len(b.data))
	copy(buf, b.data)
	return buf
}

// Size returns the number of bytes in the blob. A nil Blob has size 0.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Equal reports whether two blobs hold bytewise-identical contents.
// Two nil blobs are equal; a nil blob never equals a live one.
func (b *Blob) Equal(other *Blob) bool {
	if b == nil || other == nil {
		return b.Size() == 0 && other.Size() == 0
	}
	return bytes.Equal(b.data, other.data)
}
