package assemble

import "errors"

var (
	ErrAssembly = errors.New("image assembly failed")
)
