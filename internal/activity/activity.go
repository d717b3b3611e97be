// Package activity tracks device liveness: a self-reported presence flag
// plus a heartbeat timestamp, combined into a derived status that gates
// fetches and pushes.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitdeck/transitdeck/internal/store"
)

// Presence is the device's self-reported liveness marker.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceUnknown Presence = "unknown"
)

// Status is derived from presence and heartbeat age.
type Status string

const (
	StatusActive   Status = "active"
	StatusStale    Status = "stale"
	StatusInactive Status = "inactive"
	StatusUnknown  Status = "unknown"
)

// Snapshot is the derived activity state of one device at a point in time.
type Snapshot struct {
	DeviceID   string
	Presence   Presence
	LastSeenMs int64 // 0 when no heartbeat was ever recorded
	Status     Status
	Reason     string
}

const (
	// Heartbeat timeout bounds. Values outside are clamped.
	MinHeartbeatTimeout     = 15 * time.Second
	MaxHeartbeatTimeout     = 5 * time.Minute
	DefaultHeartbeatTimeout = time.Minute

	activePrefix = "device:active:"
)

func presenceKey(id string) string { return "device:activity:" + id + ":presence" }
func lastSeenKey(id string) string { return "device:activity:" + id + ":last_seen_ms" }

// Store persists presence and heartbeats in the side KV so activity survives
// engine restarts. Mutations log failures but are best-effort: a store
// outage must not abort the caller's flow.
type Store struct {
	kv      store.KV
	timeout time.Duration
	log     zerolog.Logger
}

func NewStore(kv store.KV, heartbeatTimeout time.Duration, log zerolog.Logger) *Store {
	if heartbeatTimeout == 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	if heartbeatTimeout < MinHeartbeatTimeout {
		heartbeatTimeout = MinHeartbeatTimeout
	}
	if heartbeatTimeout > MaxHeartbeatTimeout {
		heartbeatTimeout = MaxHeartbeatTimeout
	}
	return &Store{
		kv:      kv,
		timeout: heartbeatTimeout,
		log:     log.With().Str("component", "activity").Logger(),
	}
}

// HeartbeatTimeout returns the effective (clamped) timeout.
func (s *Store) HeartbeatTimeout() time.Duration { return s.timeout }

// MarkActive records presence=online for the device. Explicit activation is
// itself a liveness signal, so it also stamps a heartbeat and the restore
// flag scanned on startup.
func (s *Store) MarkActive(ctx context.Context, deviceID string, now time.Time) error {
	pairs := map[string][]byte{
		presenceKey(deviceID):   []byte(PresenceOnline),
		lastSeenKey(deviceID):   []byte(strconv.FormatInt(now.UnixMilli(), 10)),
		activePrefix + deviceID: []byte("1"),
	}
	if err := s.kv.MSet(ctx, pairs); err != nil {
		s.log.Error().Str("device", deviceID).Err(err).Msg("mark active failed")
		return fmt.Errorf("mark active %s: %w", deviceID, err)
	}
	return nil
}

// MarkInactive records presence=offline and clears the restore flag.
func (s *Store) MarkInactive(ctx context.Context, deviceID string) error {
	if err := s.kv.Set(ctx, presenceKey(deviceID), []byte(PresenceOffline), 0); err != nil {
		s.log.Error().Str("device", deviceID).Err(err).Msg("mark inactive failed")
		return fmt.Errorf("mark inactive %s: %w", deviceID, err)
	}
	if err := s.kv.Del(ctx, activePrefix+deviceID); err != nil {
		s.log.Warn().Str("device", deviceID).Err(err).Msg("clearing active flag failed")
	}
	return nil
}

// RecordHeartbeat stamps lastSeen=now and presence=online.
func (s *Store) RecordHeartbeat(ctx context.Context, deviceID string, now time.Time) error {
	return s.MarkActive(ctx, deviceID, now)
}

// Snapshot derives the status of one device at now.
func (s *Store) Snapshot(ctx context.Context, deviceID string, now time.Time) (Snapshot, error) {
	snaps, err := s.SnapshotMany(ctx, []string{deviceID}, now)
	if err != nil {
		return Snapshot{}, err
	}
	return snaps[deviceID], nil
}

// SnapshotMany derives statuses for a batch of devices with one round trip.
func (s *Store) SnapshotMany(ctx context.Context, deviceIDs []string, now time.Time) (map[string]Snapshot, error) {
	if len(deviceIDs) == 0 {
		return map[string]Snapshot{}, nil
	}
	keys := make([]string, 0, len(deviceIDs)*2)
	for _, id := range deviceIDs {
		keys = append(keys, presenceKey(id), lastSeenKey(id))
	}
	vals, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("activity snapshot: %w", err)
	}

	out := make(map[string]Snapshot, len(deviceIDs))
	for i, id := range deviceIDs {
		presence := PresenceUnknown
		if raw := vals[i*2]; raw != nil {
			switch Presence(raw) {
			case PresenceOnline:
				presence = PresenceOnline
			case PresenceOffline:
				presence = PresenceOffline
			}
		}
		var lastSeen int64
		if raw := vals[i*2+1]; raw != nil {
			if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				lastSeen = ms
			}
		}
		snap := Snapshot{DeviceID: id, Presence: presence, LastSeenMs: lastSeen}
		snap.Status, snap.Reason = derive(presence, lastSeen, now, s.timeout)
		out[id] = snap
	}
	return out, nil
}

// ActiveIDs filters deviceIDs down to those whose derived status is active.
// Stale devices are deliberately excluded from pushes until they heartbeat.
func (s *Store) ActiveIDs(ctx context.Context, deviceIDs []string, now time.Time) (map[string]struct{}, error) {
	snaps, err := s.SnapshotMany(ctx, deviceIDs, now)
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for id, snap := range snaps {
		if snap.Status == StatusActive {
			active[id] = struct{}{}
		}
	}
	return active, nil
}

// RestoreActive returns the device ids flagged active in the store. Presence
// and heartbeats persist on their own; the flag set lets startup report which
// devices were active before a restart.
func (s *Store) RestoreActive(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Scan(ctx, activePrefix)
	if err != nil {
		return nil, fmt.Errorf("activity restore: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, activePrefix))
	}
	return ids, nil
}

func derive(presence Presence, lastSeenMs int64, now time.Time, timeout time.Duration) (Status, string) {
	if lastSeenMs > 0 {
		age := now.UnixMilli() - lastSeenMs
		if age <= timeout.Milliseconds() {
			return StatusActive, "heartbeat_recent"
		}
		switch presence {
		case PresenceOnline:
			return StatusStale, "heartbeat_timeout_presence_online"
		case PresenceOffline:
			return StatusInactive, "presence_offline"
		default:
			return StatusInactive, "heartbeat_timeout"
		}
	}
	switch presence {
	case PresenceOffline:
		return StatusInactive, "presence_offline_no_heartbeat"
	case PresenceOnline:
		return StatusStale, "presence_online_no_heartbeat"
	default:
		return StatusUnknown, "no_signal"
	}
}
