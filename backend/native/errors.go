package native

import "errors"

// Pipeline cache errors.
var (
	// ErrNilDescriptor is returned when creating a pipeline with a nil
	// descriptor.
	ErrNilDescriptor = errors.New("native: pipeline descriptor is nil")

	// ErrNilPersistentCache is returned when a cache is constructed without
	// a persistent cache façade.
	ErrNilPersistentCache = errors.New("native: persistent cache is nil")

	// ErrNilShader is returned when compiling with no source or creating a
	// pipeline with a nil shader module.
	ErrNilShader = errors.New("native: shader module is nil")

	// ErrEntryNotFound is returned by a library lookup when no entry exists
	// under the requested name. It is a cache miss, not a failure: callers
	// fall through to real pipeline creation. Every other library error is
	// a genuine platform problem and propagates.
	ErrEntryNotFound = errors.New("native: library entry not found")

	// ErrEntryExists is returned by a library store when the name is already
	// occupied. Benign: another device baked the same pipeline first.
	ErrEntryExists = errors.New("native: library entry already exists")

	// ErrLibraryDestroyed is returned when operating on a destroyed library.
	ErrLibraryDestroyed = errors.New("native: pipeline library destroyed")

	// ErrCacheReleased is returned when using a shared cache entry after its
	// last reference was dropped.
	ErrCacheReleased = errors.New("native: shared pipeline cache released")
)
