// Package subs defines the subscription model and the sources that load it.
// A subscription binds one device to one provider request; the set is
// reloaded as a complete snapshot, never mutated in place.
package subs

import "context"

// Subscription is immutable per reload cycle. Zero values for the display
// options mean "unset"; the fanout builder applies defaults and clamps.
type Subscription struct {
	DeviceID          string
	ProviderID        string
	Type              string
	Config            map[string]string
	DisplayType       int
	Scrolling         bool
	ArrivalsToDisplay int
}

// Source loads the current subscription snapshot. Implementations must be
// safe to call repeatedly.
type Source interface {
	Load(ctx context.Context) ([]Subscription, error)
}

// Static is a fixed snapshot, used in tests and single-node demo runs.
type Static []Subscription

func (s Static) Load(context.Context) ([]Subscription, error) {
	out := make([]Subscription, len(s))
	copy(out, s)
	return out, nil
}

// Func adapts a plain function to a Source.
type Func func(ctx context.Context) ([]Subscription, error)

func (f Func) Load(ctx context.Context) ([]Subscription, error) { return f(ctx) }
