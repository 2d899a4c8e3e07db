package build

import "errors"

var (
	ErrDependencyBuild  = errors.New("dependency build failed")
	ErrApplicationBuild = errors.New("application build failed")
)
