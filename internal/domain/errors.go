package domain

import "errors"

var (
	// ErrRetrievalFailed is returned when the external catalog search failed
	// or timed out for one item.
	ErrRetrievalFailed = errors.New("catalog retrieval failed")

	// ErrClassificationFailed is returned when the external classifier
	// failed, timed out, or was cancelled for one item.
	ErrClassificationFailed = errors.New("candidate classification failed")

	// ErrInvalidItem is returned when a detection item is malformed,
	// e.g. missing its id or reference image.
	ErrInvalidItem = errors.New("invalid detection item")

	// ErrSchedulerInvariant is returned when a concurrency guarantee is
	// broken, e.g. the in-flight count exceeds the ceiling. Fatal for the run.
	ErrSchedulerInvariant = errors.New("scheduler invariant violated")

	// ErrCatalogAPIFailure is returned when a catalog API request fails.
	ErrCatalogAPIFailure = errors.New("catalog API request failed")

	// ErrClassifierAPIFailure is returned when a classifier API request fails.
	ErrClassifierAPIFailure = errors.New("classifier API request failed")

	// ErrCacheMiss is returned when data is not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished is returned when stopping a run that already terminated.
	ErrRunFinished = errors.New("run already finished")

	// ErrImageUnavailable is returned when an image handle cannot be fetched.
	ErrImageUnavailable = errors.New("image unavailable")
)
