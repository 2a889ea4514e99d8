package service

import (
	"context"
	"sort"
	"time"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// NewStringSet creates a set from a list of strings
func NewStringSet(s ...string) StringSet {
	ss := make(StringSet, len(s))
	for _, v := range s {
		ss.Push(v)
	}
	return ss
}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Pop removes the string from the set
func (ss StringSet) Pop(s string) {
	delete(ss, s)
}

// Slice returns a slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	return sl
}

// Sorted returns a sorted slice from the set
func (ss StringSet) Sorted() []string {
	sl := ss.Slice()
	sort.Strings(sl)
	return sl
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// Retriable calls f at most nbTries times, until it succeeds or returns a fatal error.
// The delay between two tries is doubled each time.
func Retriable(ctx context.Context, f func() error, delay time.Duration, nbTries int) error {
	var err error
	for i := 0; i < nbTries; i++ {
		if err = f(); err == nil || Fatal(err) {
			return err
		}
		if i == nbTries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return MergeErrors(true, err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
