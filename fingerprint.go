package pipecache

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// Recordable is implemented by objects that know how to fold their own
// content into a Recorder. Implementations must record every field that
// influences the object's observable behavior, in a fixed order, and must
// never record process-local identity (pointers, object IDs): the fingerprint
// has to come out identical when the same logical content is recorded again
// in another process.
//
// There is deliberately no way to record an object by reference. The only
// recordable kinds are the typed Record methods on Recorder plus nested
// Recordable values, so a pointer identity cannot leak into a key even by
// accident.
type Recordable interface {
	Fingerprint(r *Recorder)
}

// Recorder incrementally folds typed values into a single running hash.
//
// It serves two distinct consumers built on one primitive: memoized
// object-identity fingerprints for in-memory interning (see FingerprintMemo)
// and durable cache keys that survive process restarts. Determinism is the
// entire point: recording the same logical content in the same order always
// yields the same key, and the combine function is order-sensitive so field
// permutations do not collide.
//
// Lifecycle: NewRecorder, one or more Record calls, then Key. Calling Key
// before recording anything, or recording after Key, is a programming error
// and panics. Recorders are cheap and transient; build a fresh one per
// recording session.
//
// Recorder is not safe for concurrent use.
type Recorder struct {
	h        hash.Hash64
	records  int
	finished bool
}

// NewRecorder creates an empty recorder in the fresh state.
func NewRecorder() *Recorder {
	return &Recorder{h: fnv.New64a()}
}

func (r *Recorder) fold(buf []byte) {
	if r.finished {
		panic("pipecache: Record called on a finalized Recorder")
	}
	_, _ = r.h.Write(buf) // fnv.Write never returns an error
	r.records++
}

// RecordUint32 folds a 32-bit value (or any enum backed by one) into the hash.
func (r *Recorder) RecordUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	r.fold(buf[:])
}

// RecordUint64 folds a 64-bit value into the hash.
func (r *Recorder) RecordUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	r.fold(buf[:])
}

// RecordFloat64 folds a float by its IEEE-754 bit pattern, so that
// recording is bit-exact rather than subject to formatting.
func (r *Recorder) RecordFloat64(v float64) {
	r.RecordUint64(math.Float64bits(v))
}

// RecordBool folds a boolean into the hash.
func (r *Recorder) RecordBool(v bool) {
	if v {
		r.fold([]byte{1})
	} else {
		r.fold([]byte{0})
	}
}

// RecordString folds a length-prefixed string into the hash. The prefix
// keeps adjacent variable-length fields from sliding into each other.
func (r *Recorder) RecordString(s string) {
	r.RecordUint32(uint32(len(s)))
	r.fold([]byte(s))
}

// RecordBytes folds a length-prefixed byte slice into the hash.
func (r *Recorder) RecordBytes(b []byte) {
	r.RecordUint32(uint32(len(b)))
	r.fold(b)
}

// RecordUint32s folds a length-prefixed vector of 32-bit words into the
// hash. Used for SPIR-V word streams and similar integer vectors.
func (r *Recorder) RecordUint32s(vs []uint32) {
	r.RecordUint32(uint32(len(vs)))
	for _, v := range vs {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		_, _ = r.h.Write(buf[:])
	}
}

// RecordObject folds a nested Recordable into the hash by its content
// fingerprint, never by its address.
//
// The nested object's fields are recorded into a private sub-recorder and
// the resulting scalar is folded here. If the object embeds FingerprintMemo,
// the scalar is computed once and memoized on the object, making repeated
// recordings of shared blueprints (attachment states, layouts) cheap.
func (r *Recorder) RecordObject(obj Recordable) {
	if obj == nil {
		panic("pipecache: RecordObject called with nil object")
	}
	if m, ok := obj.(memoizer); ok {
		if key, ok := m.memoized(); ok {
			r.RecordUint64(key)
			return
		}
		key := fingerprintOf(obj)
		m.memoize(key)
		r.RecordUint64(key)
		return
	}
	r.RecordUint64(fingerprintOf(obj))
}

// fingerprintOf computes an object's standalone fingerprint.
func fingerprintOf(obj Recordable) uint64 {
	sub := NewRecorder()
	obj.Fingerprint(sub)
	return sub.Key()
}

// Key finalizes the recorder and returns the accumulated hash.
//
// After Key returns, the recorder is read-only: further Record calls panic.
// Calling Key on a recorder that has recorded nothing panics, since a key
// derived from no content cannot identify anything.
func (r *Recorder) Key() uint64 {
	if r.records == 0 {
		panic("pipecache: Key called on a Recorder with no recorded values")
	}
	r.finished = true
	return r.h.Sum64()
}

// memoizer is satisfied by types embedding FingerprintMemo.
type memoizer interface {
	memoized() (uint64, bool)
	memoize(key uint64)
}

// FingerprintMemo caches an object's identity fingerprint after its first
// computation. Embed it in blueprint types that are fingerprinted repeatedly,
// such as interned attachment states:
//
//	type AttachmentState struct {
//	    pipecache.FingerprintMemo
//	    // ...
//	}
//
// The memo distinguishes "never computed" from "computed but degenerate":
// any computed value, including zero, is remembered once set.
//
// FingerprintMemo is not synchronized; blueprint fingerprints are computed
// at object construction before the object is shared.
type FingerprintMemo struct {
	key      uint64
	computed bool
}

func (m *FingerprintMemo) memoized() (uint64, bool) {
	return m.key, m.computed
}

func (m *FingerprintMemo) memoize(key uint64) {
	m.key = key
	m.computed = true
}

// FingerprintKey returns the memoized fingerprint, or (0, false) if the
// object has not been recorded yet.
func (m *FingerprintMemo) FingerprintKey() (uint64, bool) {
	return m.memoized()
}
