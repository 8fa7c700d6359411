package udefarp

import "errors"

// Fatal conditions. Every workflow wraps one of these with the raster names
// and shapes involved, so callers can branch with errors.Is and still render
// a useful message.
var (
	// ErrShapeMismatch: inputs disagree in rows, columns or pixel size.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotBinaryMap: a raster expected to encode {0,1} does not.
	ErrNotBinaryMap = errors.New("not a binary map")

	// ErrDegenerateInput: classification cannot satisfy its class-count or NRT constraints.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrEmptyInput: no valid pixels to operate on.
	ErrEmptyInput = errors.New("empty input")
)
