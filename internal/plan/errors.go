package plan

import "errors"

var (
	ErrPlan = errors.New("plan generation failed")
)
