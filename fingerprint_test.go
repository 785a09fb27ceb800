package pipecache

import (
	"math"
	"testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

// recordedObject is a plain Recordable without memoization.
type recordedObject struct {
	a uint32
	s string
}

func (o *recordedObject) Fingerprint(r *Recorder) {
	r.RecordUint32(o.a)
	r.RecordString(o.s)
}

// memoObject counts how many times its Fingerprint runs.
type memoObject struct {
	FingerprintMemo
	value uint64
	calls int
}

func (o *memoObject) Fingerprint(r *Recorder) {
	o.calls++
	r.RecordUint64(o.value)
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecorderDeterminism(t *testing.T) {
	build := func() uint64 {
		r := NewRecorder()
		r.RecordUint32(7)
		r.RecordUint64(1 << 40)
		r.RecordFloat64(3.25)
		r.RecordBool(true)
		r.RecordString("vs_main")
		r.RecordBytes([]byte{1, 2, 3})
		r.RecordUint32s([]uint32{9, 8})
		return r.Key()
	}

	if build() != build() {
		t.Error("identical record sequences produced different keys")
	}
}

func TestRecorderOrderSensitive(t *testing.T) {
	r1 := NewRecorder()
	r1.RecordUint32(1)
	r1.RecordUint32(2)

	r2 := NewRecorder()
	r2.RecordUint32(2)
	r2.RecordUint32(1)

	if r1.Key() == r2.Key() {
		t.Error("swapped field order produced the same key")
	}
}

func TestRecorderLengthPrefixing(t *testing.T) {
	// "ab"+"c" and "a"+"bc" concatenate identically; the length prefix
	// must keep them apart.
	r1 := NewRecorder()
	r1.RecordString("ab")
	r1.RecordString("c")

	r2 := NewRecorder()
	r2.RecordString("a")
	r2.RecordString("bc")

	if r1.Key() == r2.Key() {
		t.Error("adjacent strings slid into each other")
	}

	r3 := NewRecorder()
	r3.RecordBytes([]byte("ab"))
	r3.RecordBytes([]byte("c"))

	r4 := NewRecorder()
	r4.RecordBytes([]byte("a"))
	r4.RecordBytes([]byte("bc"))

	if r3.Key() == r4.Key() {
		t.Error("adjacent byte slices slid into each other")
	}
}

func TestRecorderUint32sLengthSensitive(t *testing.T) {
	r1 := NewRecorder()
	r1.RecordUint32s([]uint32{0})

	r2 := NewRecorder()
	r2.RecordUint32s(nil)
	r2.RecordUint32(0)

	if r1.Key() == r2.Key() {
		t.Error("word vector boundary not captured by length prefix")
	}
}

func TestRecorderFloatBitExact(t *testing.T) {
	r1 := NewRecorder()
	r1.RecordFloat64(0.1)

	r2 := NewRecorder()
	r2.RecordFloat64(0.1 + 1e-18) // same float64 after rounding

	if r1.Key() != r2.Key() {
		t.Error("bit-identical floats produced different keys")
	}

	r3 := NewRecorder()
	r3.RecordFloat64(math.Copysign(0, -1)) // the constant literal -0.0 is +0.0 in Go
	r4 := NewRecorder()
	r4.RecordFloat64(0.0)
	if r3.Key() == r4.Key() {
		t.Error("-0.0 and +0.0 have distinct bit patterns and must differ")
	}
}

func TestRecorderPanics(t *testing.T) {
	mustPanic(t, "Key with no records", func() {
		NewRecorder().Key()
	})

	mustPanic(t, "record after Key", func() {
		r := NewRecorder()
		r.RecordUint32(1)
		r.Key()
		r.RecordUint32(2)
	})

	mustPanic(t, "nil object", func() {
		r := NewRecorder()
		r.RecordObject(nil)
	})
}

// =============================================================================
// RecordObject Tests
// =============================================================================

func TestRecordObjectByContent(t *testing.T) {
	// Two distinct instances with equal content must fold identically.
	r1 := NewRecorder()
	r1.RecordObject(&recordedObject{a: 5, s: "x"})

	r2 := NewRecorder()
	r2.RecordObject(&recordedObject{a: 5, s: "x"})

	if r1.Key() != r2.Key() {
		t.Error("equal objects at different addresses produced different keys")
	}

	r3 := NewRecorder()
	r3.RecordObject(&recordedObject{a: 6, s: "x"})
	if r1.Key() == r3.Key() {
		t.Error("differing objects produced the same key")
	}
}

func TestRecordObjectNesting(t *testing.T) {
	// A nested object is folded as one scalar, so it cannot collide with
	// its own flattened fields.
	obj := &recordedObject{a: 5, s: "x"}

	nested := NewRecorder()
	nested.RecordObject(obj)

	flat := NewRecorder()
	obj.Fingerprint(flat)

	if nested.Key() == flat.Key() {
		t.Error("nested object folded identically to its flattened fields")
	}
}

func TestFingerprintMemo(t *testing.T) {
	obj := &memoObject{value: 42}

	if _, ok := obj.FingerprintKey(); ok {
		t.Fatal("fresh memo reports a computed key")
	}

	r1 := NewRecorder()
	r1.RecordObject(obj)
	first := r1.Key()

	key, ok := obj.FingerprintKey()
	if !ok {
		t.Fatal("memo not populated after RecordObject")
	}

	r2 := NewRecorder()
	r2.RecordObject(obj)
	if r2.Key() != first {
		t.Error("memoized recording diverged from the first")
	}

	if obj.calls != 1 {
		t.Errorf("Fingerprint ran %d times, want 1", obj.calls)
	}

	// The memoized scalar matches a fresh computation of the same content.
	fresh := NewRecorder()
	fresh.RecordUint64(obj.value)
	if key != fresh.Key() {
		t.Error("memoized key differs from content fingerprint")
	}
}
