package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipecache"
	"github.com/gogpu/pipecache/internal/intern"
)

// AttachmentState is the blueprint describing a pipeline's attachment
// configuration: the color target formats, the depth/stencil format, and
// the sample count. Pipelines and render passes that agree on this
// blueprint are attachment-compatible.
//
// AttachmentState values are interned through an AttachmentStateCache so
// that equal configurations share one instance and its memoized
// fingerprint. Interning is process-local de-duplication only; the
// fingerprint is content-derived, so it also contributes safely to durable
// descriptor hashes.
//
// Treat an interned AttachmentState as immutable.
type AttachmentState struct {
	pipecache.FingerprintMemo

	// ColorFormats are the color attachment formats, in attachment order.
	ColorFormats []gputypes.TextureFormat

	// DepthStencilFormat is the depth attachment format, or
	// TextureFormatUndefined when no depth attachment exists.
	DepthStencilFormat gputypes.TextureFormat

	// SampleCount is the number of samples per pixel (1 for non-MSAA).
	SampleCount uint32
}

// Fingerprint implements pipecache.Recordable.
func (s *AttachmentState) Fingerprint(r *pipecache.Recorder) {
	r.RecordUint32(uint32(len(s.ColorFormats)))
	for _, f := range s.ColorFormats {
		r.RecordUint32(uint32(f))
	}
	r.RecordUint32(uint32(s.DepthStencilFormat))
	r.RecordUint32(s.SampleCount)
}

// attachmentPoolLimit bounds the interning pool. Real workloads use a
// handful of attachment configurations; the limit only guards pathological
// descriptor churn.
const attachmentPoolLimit = 256

// AttachmentStateCache interns AttachmentState blueprints by content.
//
// AttachmentStateCache is safe for concurrent use.
type AttachmentStateCache struct {
	pool *intern.Pool[*AttachmentState]
}

// NewAttachmentStateCache creates an empty interning cache.
func NewAttachmentStateCache() *AttachmentStateCache {
	return &AttachmentStateCache{pool: intern.New[*AttachmentState](attachmentPoolLimit)}
}

// GetOrCreate returns the canonical instance for the given configuration.
// The blueprint argument is treated as a lookup template; the returned
// instance may be a previously interned equal blueprint.
func (c *AttachmentStateCache) GetOrCreate(blueprint *AttachmentState) *AttachmentState {
	key := pipecache.NewRecorder()
	blueprint.Fingerprint(key)
	return c.pool.GetOrCreate(key.Key(), func() *AttachmentState {
		// Intern a private copy so callers can reuse their template.
		state := &AttachmentState{
			ColorFormats:       append([]gputypes.TextureFormat(nil), blueprint.ColorFormats...),
			DepthStencilFormat: blueprint.DepthStencilFormat,
			SampleCount:        blueprint.SampleCount,
		}
		// Memoize eagerly: interned blueprints are fingerprinted on every
		// descriptor hash.
		r := pipecache.NewRecorder()
		r.RecordObject(state)
		return state
	})
}

// Len returns the number of interned blueprints.
func (c *AttachmentStateCache) Len() int {
	return c.pool.Len()
}
