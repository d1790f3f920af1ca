package ssa

import "errors"

var (
	// ErrSeriesTooShort is returned when the input series has fewer than two points.
	ErrSeriesTooShort = errors.New("close series too short")

	// ErrDegenerateWindow means the trajectory matrix would have no columns
	// (k < 1). The series itself is used as the trend.
	ErrDegenerateWindow = errors.New("degenerate embedding window")

	// ErrVerticalSubspace means the last coordinate of the retained singular
	// subspace has squared norm at or above VerticalityThreshold, so no linear
	// recurrence can be formed.
	ErrVerticalSubspace = errors.New("singular subspace is vertical")

	// ErrShortForecast means the recurrence ran out of history before
	// reaching the requested horizon.
	ErrShortForecast = errors.New("recurrence forecast shorter than horizon")

	// ErrShape is returned for matrices or vectors whose dimensions do not
	// match what the operation requires.
	ErrShape = errors.New("dimension mismatch")
)

// IsFallback reports whether err is a numerical degeneracy that only calls
// for an alternative code path rather than failing the request.
func IsFallback(err error) bool {
	return errors.Is(err, ErrDegenerateWindow) ||
		errors.Is(err, ErrVerticalSubspace) ||
		errors.Is(err, ErrShortForecast)
}
