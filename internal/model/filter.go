package model

import (
	"errors"
	"fmt"
	"strings"
)

// Filter selects which tasks a list view shows.
type Filter string

// Supported filters.
const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ErrUnknownFilter is returned by ParseFilter for unsupported values.
var ErrUnknownFilter = errors.New("filter must be one of: all, active, completed")

// ParseFilter converts a query value into a Filter. An empty value means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive:
		return FilterActive, nil
	case FilterCompleted:
		return FilterCompleted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
}

// FilterTasks returns the tasks matching f, preserving order. The input is
// never modified; the result is always a new slice.
func FilterTasks(tasks []Task, f Filter) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		switch f {
		case FilterActive:
			if !t.IsActive() {
				continue
			}
		case FilterCompleted:
			if t.IsActive() {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
