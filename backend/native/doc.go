// Package native implements the backend layer of the pipeline cache: the
// native pipeline-library lifecycle, cross-device sharing on one adapter,
// and the shader compiler-cache integration.
//
// The package wraps an opaque pipeline library — a vendor-provided in-memory
// structure that caches baked pipeline state objects by name and can be
// serialized to a single blob. A PipelineCache persists that blob through a
// pipecache.PersistentCache; an Adapter's shared registry lets multiple
// logical devices on the same physical adapter share one live library.
//
// Platforms without a vendor library use the in-tree software library, and
// platforms without any library support degrade to pass-through mode where
// every pipeline is created fresh. Both are fully supported operating modes.
package native
