// Package store provides reference implementations of
// pipecache.CachingInterface for hosts that do not bring their own.
//
// Two stores are included:
//
//   - Memory: a sharded, byte-budgeted in-process store. Useful for tests
//     and for processes that want cross-device reuse without persistence.
//   - Disk: a directory of content-named, zstd-compressed blob files with
//     an in-memory hot layer. Survives process restarts.
//
// Both stores honor the CachingInterface contract: loads never fail, they
// miss; stores are best-effort and report acceptance. Any internal error
// (I/O failure, corruption, checksum mismatch) is folded into a miss.
package store
