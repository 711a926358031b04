package health

import (
	"github.com/hashicorp/go-multierror"
)

// MultiChecker aggregates checkers and reports healthy only when every one
// of them does.
type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{checkers: checkers}
}

// Add registers another checker.
func (mc *MultiChecker) Add(checker Checker) {
	mc.checkers = append(mc.checkers, checker)
}

func (mc *MultiChecker) Check() error {
	var failures *multierror.Error
	for _, checker := range mc.checkers {
		failures = multierror.Append(failures, checker.Check())
	}
	return failures.ErrorOrNil()
}
