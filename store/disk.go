package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/gogpu/pipecache"
)

// diskMagic guards against reading files this store did not write.
var diskMagic = []byte("gpcb1\x00")

// defaultHotEntries is the size of the in-memory hot layer in entries.
const defaultHotEntries = 256

// Disk is a directory-backed blob store.
//
// Each entry is one file named by the blake3 digest of its cache key, so
// arbitrary-length binary keys never meet filesystem name limits. The
// payload is zstd-compressed and prefixed with a blake3 checksum of the
// uncompressed bytes; a corrupted or truncated file fails the checksum and
// reads as a miss. Writes go through a temp file plus rename so concurrent
// readers in other processes never observe a torn entry.
//
// A small LRU hot layer keeps recently touched entries decoded in memory.
//
// Disk is safe for concurrent use.
type Disk struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
	hot *lru.Cache[string, []byte]
}

// OpenDisk opens (creating if needed) a disk store rooted at dir.
func OpenDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}
	hot, err := lru.New[string, []byte](defaultHotEntries)
	if err != nil {
		return nil, fmt.Errorf("store: hot cache: %w", err)
	}
	return &Disk{dir: dir, enc: enc, dec: dec, hot: hot}, nil
}

// fileFor maps a cache key to its on-disk path. The device identity is
// deliberately not part of the name: every device sharing one store sees
// the same entries, which is what lets one device's flushed library seed
// its siblings.
func (d *Disk) fileFor(key []byte) string {
	sum := blake3.Sum256(key)
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".blob")
}

// LoadData implements pipecache.CachingInterface.
func (d *Disk) LoadData(_ pipecache.DeviceIdentity, key []byte) []byte {
	path := d.fileFor(key)

	if value, ok := d.hot.Get(path); ok {
		out := make([]byte, len(value))
		copy(out, value)
		return out
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		// Not found and unreadable are both misses.
		return nil
	}
	value, err := d.decode(raw)
	if err != nil {
		pipecache.Logger().Warn("store: discarding bad cache file",
			"path", path, "err", err)
		_ = os.Remove(path)
		return nil
	}

	d.hot.Add(path, value)
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// StoreData implements pipecache.CachingInterface.
func (d *Disk) StoreData(_ pipecache.DeviceIdentity, key, value []byte) bool {
	path := d.fileFor(key)
	encoded := d.encode(value)

	tmp, err := os.CreateTemp(d.dir, "write-*")
	if err != nil {
		return false
	}
	_, werr := tmp.Write(encoded)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return false
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return false
	}

	resident := make([]byte, len(value))
	copy(resident, value)
	d.hot.Add(path, resident)
	return true
}

// encode frames a value as magic || blake3(value) || zstd(value).
func (d *Disk) encode(value []byte) []byte {
	sum := blake3.Sum256(value)
	out := make([]byte, 0, len(diskMagic)+len(sum)+len(value)/2+64)
	out = append(out, diskMagic...)
	out = append(out, sum[:]...)
	return d.enc.EncodeAll(value, out)
}

// decode parses and verifies a framed value.
func (d *Disk) decode(raw []byte) ([]byte, error) {
	if len(raw) < len(diskMagic)+32 || !bytes.HasPrefix(raw, diskMagic) {
		return nil, fmt.Errorf("store: bad frame header")
	}
	var want [32]byte
	copy(want[:], raw[len(diskMagic):])
	value, err := d.dec.DecodeAll(raw[len(diskMagic)+32:], nil)
	if err != nil {
		return nil, fmt.Errorf("store: decompress: %w", err)
	}
	if blake3.Sum256(value) != want {
		return nil, fmt.Errorf("store: checksum mismatch")
	}
	return value, nil
}

// Close releases the compressor resources. The store must not be used
// after Close.
func (d *Disk) Close() {
	d.enc.Close()
	d.dec.Close()
	d.hot.Purge()
}
