package external

import "errors"

var (
	ErrFetch         = errors.New("external fetch failed")
	ErrExternalBuild = errors.New("external build failed")
)
