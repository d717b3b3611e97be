// Package fanout rebuilds the key→devices and device→keys maps from a
// subscription snapshot. Maps are rebuilt as a unit and swapped atomically
// by the engine; nothing mutates a built snapshot.
package fanout

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/transitdeck/transitdeck/internal/provider"
	"github.com/transitdeck/transitdeck/internal/subs"
)

// Display option bounds.
const (
	DefaultDisplayType       = 1
	DefaultArrivalsToDisplay = 1
	MaxArrivalsToDisplay     = 3
)

// DeviceOptions are the per-device render options, defaulted and clamped.
type DeviceOptions struct {
	DisplayType       int
	Scrolling         bool
	ArrivalsToDisplay int
}

// DefaultDeviceOptions is applied to devices that appear in no subscription.
func DefaultDeviceOptions() DeviceOptions {
	return DeviceOptions{
		DisplayType:       DefaultDisplayType,
		ArrivalsToDisplay: DefaultArrivalsToDisplay,
	}
}

// Maps is one immutable fanout snapshot.
type Maps struct {
	ByKey    map[string]map[string]struct{} // key → device ids
	ByDevice map[string]map[string]struct{} // device id → keys
	Options  map[string]DeviceOptions
}

// Empty returns a snapshot with no subscriptions.
func Empty() *Maps {
	return &Maps{
		ByKey:    map[string]map[string]struct{}{},
		ByDevice: map[string]map[string]struct{}{},
		Options:  map[string]DeviceOptions{},
	}
}

// DeviceIDs returns all subscribed device ids, sorted for determinism.
func (m *Maps) DeviceIDs() []string {
	ids := make([]string, 0, len(m.ByDevice))
	for id := range m.ByDevice {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// KeysForDevice returns the device's keys, sorted for determinism.
func (m *Maps) KeysForDevice(deviceID string) []string {
	set, ok := m.ByDevice[deviceID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OptionsFor returns the device's options, falling back to defaults.
func (m *Maps) OptionsFor(deviceID string) DeviceOptions {
	if opts, ok := m.Options[deviceID]; ok {
		return opts
	}
	return DefaultDeviceOptions()
}

// Build derives the fanout snapshot from a subscription set. Subscriptions
// naming an unknown provider or unsupported type are dropped with a warning.
// Per-device options keep the first occurrence in subscription order.
func Build(subscriptions []subs.Subscription, registry *provider.Registry, log zerolog.Logger) *Maps {
	m := Empty()
	for _, sub := range subscriptions {
		plugin, ok := registry.Get(sub.ProviderID)
		if !ok {
			log.Warn().
				Str("device", sub.DeviceID).
				Str("provider", sub.ProviderID).
				Msg("dropping subscription: unknown provider")
			continue
		}
		if !plugin.Supports(sub.Type) {
			log.Warn().
				Str("device", sub.DeviceID).
				Str("provider", sub.ProviderID).
				Str("type", sub.Type).
				Msg("dropping subscription: unsupported type")
			continue
		}
		key, err := plugin.ToKey(sub.Type, sub.Config)
		if err != nil {
			log.Warn().
				Str("device", sub.DeviceID).
				Str("provider", sub.ProviderID).
				Err(err).
				Msg("dropping subscription: key build failed")
			continue
		}

		if m.ByKey[key] == nil {
			m.ByKey[key] = map[string]struct{}{}
		}
		m.ByKey[key][sub.DeviceID] = struct{}{}

		if m.ByDevice[sub.DeviceID] == nil {
			m.ByDevice[sub.DeviceID] = map[string]struct{}{}
		}
		m.ByDevice[sub.DeviceID][key] = struct{}{}

		if _, seen := m.Options[sub.DeviceID]; !seen {
			m.Options[sub.DeviceID] = normalizeOptions(sub)
		}
	}
	return m
}

func normalizeOptions(sub subs.Subscription) DeviceOptions {
	opts := DeviceOptions{
		DisplayType:       sub.DisplayType,
		Scrolling:         sub.Scrolling,
		ArrivalsToDisplay: sub.ArrivalsToDisplay,
	}
	if opts.DisplayType == 0 {
		opts.DisplayType = DefaultDisplayType
	}
	if opts.ArrivalsToDisplay < 1 {
		opts.ArrivalsToDisplay = DefaultArrivalsToDisplay
	}
	if opts.ArrivalsToDisplay > MaxArrivalsToDisplay {
		opts.ArrivalsToDisplay = MaxArrivalsToDisplay
	}
	return opts
}
