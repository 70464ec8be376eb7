package duration

import (
	"fmt"
	"strings"
	"time"
)

// Class identifies how long a license lasts once its duration clock starts.
// The wire names are part of the client contract and must not change.
type Class string

const (
	Lifetime Class = "lifetime"
	Demo1Min Class = "demo_1min"
	Trial6H  Class = "trial_6hours"
	TwoWeeks Class = "2weeks"
	OneMonth Class = "1month"
)

var offsets = map[Class]time.Duration{
	Demo1Min: time.Minute,
	Trial6H:  6 * time.Hour,
	TwoWeeks: 14 * 24 * time.Hour,
	OneMonth: 30 * 24 * time.Hour,
}

// ErrInvalidClass is returned for duration names outside the wire contract.
type ErrInvalidClass struct {
	Raw string
}

func (e *ErrInvalidClass) Error() string {
	return fmt.Sprintf("invalid duration type %q", e.Raw)
}

// Parse validates a wire duration name.
func Parse(raw string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(raw)))
	if c == Lifetime {
		return c, nil
	}
	if _, ok := offsets[c]; !ok {
		return "", &ErrInvalidClass{Raw: raw}
	}
	return c, nil
}

// ComputeExpiry maps a class and anchor time to an expiry timestamp.
// Lifetime licenses never expire and yield nil.
func ComputeExpiry(c Class, anchor time.Time) (*time.Time, error) {
	if c == Lifetime {
		return nil, nil
	}
	offset, ok := offsets[c]
	if !ok {
		return nil, &ErrInvalidClass{Raw: string(c)}
	}
	t := anchor.Add(offset)
	return &t, nil
}

// All lists the recognized classes in display order.
func All() []Class {
	return []Class{Lifetime, Demo1Min, Trial6H, TwoWeeks, OneMonth}
}
