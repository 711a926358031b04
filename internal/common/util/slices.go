package util

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Unique returns a sorted copy of s with duplicates removed.
func Unique[S ~[]E, E constraints.Ordered](s S) S {
	result := slices.Clone(s)
	slices.Sort(result)
	return slices.Compact(result)
}
