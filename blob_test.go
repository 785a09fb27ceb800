package pipecache

import "testing"

func TestNewBlobCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	blob := NewBlob(src)
	src[0] = 99

	if got := blob.Bytes(); got[0] != 1 {
		t.Error("blob aliases the caller's slice")
	}
	if blob.Size() != 3 {
		t.Errorf("Size() = %d, want 3", blob.Size())
	}
}

func TestNewBlobEmptyIsAbsent(t *testing.T) {
	if NewBlob(nil) != nil {
		t.Error("NewBlob(nil) is not nil")
	}
	if NewBlob([]byte{}) != nil {
		t.Error("NewBlob(empty) is not nil")
	}
}

func TestNilBlobAccessors(t *testing.T) {
	var b *Blob
	if b.Bytes() != nil {
		t.Error("nil blob Bytes() not nil")
	}
	if b.Clone() != nil {
		t.Error("nil blob Clone() not nil")
	}
	if b.Size() != 0 {
		t.Error("nil blob Size() not 0")
	}
}

func TestBlobClone(t *testing.T) {
	blob := NewBlob([]byte{4, 5})
	clone := blob.Clone()
	clone[0] = 77
	if blob.Bytes()[0] != 4 {
		t.Error("Clone shares the blob buffer")
	}
}

func TestBlobEqual(t *testing.T) {
	a := NewBlob([]byte("abc"))
	b := NewBlob([]byte("abc"))
	c := NewBlob([]byte("abd"))
	var nilBlob *Blob

	if !a.Equal(b) {
		t.Error("equal contents reported unequal")
	}
	if a.Equal(c) {
		t.Error("different contents reported equal")
	}
	if !nilBlob.Equal(nil) {
		t.Error("two nil blobs reported unequal")
	}
	if nilBlob.Equal(a) || a.Equal(nilBlob) {
		t.Error("nil blob equals a live one")
	}
}
