// Package pipecache provides the persistent pipeline and shader cache for
// the GoGPU ecosystem.
//
// # Overview
//
// Compiling WGSL to native shader bytecode and baking pipeline state objects
// are the two most expensive steps of GPU initialization. pipecache avoids
// repeating them by content-addressing both artifacts: a deterministic byte
// key is derived from everything that influences the compiled output, and
// the resulting blob is stored through a host-supplied key/value store so it
// can be reused across devices, processes, and runs.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/pipecache"
//	    "github.com/gogpu/pipecache/store"
//	)
//
//	host, _ := store.OpenDisk("/var/cache/myapp/gpu")
//	pc := pipecache.NewPersistentCache(deviceID, host)
//
//	blob, err := pc.GetOrCreate(key, func(store pipecache.StoreFunc) error {
//	    artifact, err := expensiveCompile()
//	    if err != nil {
//	        return err
//	    }
//	    store(artifact)
//	    return nil
//	})
//
// # Architecture
//
// The module is layered leaf-first:
//   - Blob: immutable, shared byte buffers (the unit of storage)
//   - Recorder: deterministic fingerprinting of descriptor content
//   - CacheKey: durable byte-string lookup keys
//   - PersistentCache: the per-device load-or-create-and-store transaction
//   - backend/native: pipeline library lifecycle, cross-device sharing,
//     and the shader compiler integration (gogpu/naga, gogpu/wgpu)
//   - store: reference CachingInterface hosts (memory, disk)
//
// # Degraded Modes
//
// Persistence is strictly an optimization. A nil CachingInterface, a failing
// backing store, or a platform without pipeline-library support all degrade
// to pass-through behavior: every request recompiles, nothing persists, and
// results remain correct.
package pipecache

// Version is the current version of the library.
const Version = "0.2.0"
