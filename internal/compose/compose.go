// Package compose turns a device's cached arrival payloads into the render
// command published to the device. It is pure data shaping: the only I/O a
// caller does on its behalf is the cache read per key.
package compose

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/transitdeck/transitdeck/internal/cache"
	"github.com/transitdeck/transitdeck/internal/fanout"
	"github.com/transitdeck/transitdeck/internal/keys"
)

// MaxArrivalsPerLine is the fixed width of every nextArrivals list.
const MaxArrivalsPerLine = 3

const placeholderETA = "--"

// LabelResolver supplies static display labels. Implementations are pure
// lookups (see internal/gtfs).
type LabelResolver interface {
	StopName(stopID string) string
	DirectionLabel(line, direction, stop string) string
}

// nopResolver is used when no label table is wired.
type nopResolver struct{}

func (nopResolver) StopName(string) string               { return "" }
func (nopResolver) DirectionLabel(_, _, _ string) string { return "" }

// NopResolver returns a resolver that resolves nothing.
func NopResolver() LabelResolver { return nopResolver{} }

// Arrival is one rendered arrival slot. Lists are always padded to
// MaxArrivalsPerLine entries; placeholders carry only eta "--".
type Arrival struct {
	DelaySeconds *int   `json:"delaySeconds,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Status       string `json:"status,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Line         string `json:"line,omitempty"`
	ETA          string `json:"eta"`
}

// Line is one rendered transit line on the device.
type Line struct {
	Line           string    `json:"line"`
	Direction      string    `json:"direction,omitempty"`
	DirectionLabel string    `json:"directionLabel,omitempty"`
	Destination    string    `json:"destination,omitempty"`
	Status         string    `json:"status,omitempty"`
	NextArrivals   []Arrival `json:"nextArrivals"`
}

// Command is the render instruction published to a device. The top-level
// provider/stop/direction/eta fields mirror the first line after sorting.
type Command struct {
	DisplayType       int    `json:"displayType"`
	Scrolling         bool   `json:"scrolling"`
	ArrivalsToDisplay int    `json:"arrivalsToDisplay"`
	Provider          string `json:"provider,omitempty"`
	Stop              string `json:"stop,omitempty"`
	StopID            string `json:"stopId,omitempty"`
	Direction         string `json:"direction,omitempty"`
	DirectionLabel    string `json:"directionLabel,omitempty"`
	Destination       string `json:"destination,omitempty"`
	ETA               string `json:"eta,omitempty"`
	Lines             []Line `json:"lines"`
}

// Topic returns the per-device command topic.
func Topic(deviceID string) string {
	return "/device/" + deviceID + "/commands"
}

// Input is one cached key feeding a device command.
type Input struct {
	Key   string
	Entry cache.Entry
}

// builtLine carries per-line metadata that does not appear in the payload.
type builtLine struct {
	line     Line
	provider string
	topETA   string
	stop     string
	stopID   string
}

// Device composes the command for one device from its cached entries. Keys
// with no cache entry are expected to be filtered by the caller; entries
// with shapeless payloads still yield a line when the key params name one,
// padded with placeholder arrivals, so the display can render "no data".
func Device(inputs []Input, opts fanout.DeviceOptions, labels LabelResolver, now time.Time) Command {
	if labels == nil {
		labels = nopResolver{}
	}

	built := make([]builtLine, 0, len(inputs))
	for _, in := range inputs {
		if bl, ok := buildLine(in, labels, now); ok {
			built = append(built, bl)
		}
	}

	// Locale-insensitive ascending sort by line designation.
	sort.SliceStable(built, func(i, j int) bool {
		return strings.ToLower(built[i].line.Line) < strings.ToLower(built[j].line.Line)
	})

	cmd := Command{
		DisplayType:       opts.DisplayType,
		Scrolling:         opts.Scrolling,
		ArrivalsToDisplay: opts.ArrivalsToDisplay,
		Lines:             make([]Line, 0, len(built)),
	}
	for _, bl := range built {
		cmd.Lines = append(cmd.Lines, bl.line)
	}
	if len(built) > 0 {
		first := built[0]
		cmd.Provider = first.provider
		cmd.Stop = first.stop
		cmd.StopID = first.stopID
		cmd.Direction = first.line.Direction
		cmd.DirectionLabel = first.line.DirectionLabel
		cmd.Destination = first.line.Destination
		cmd.ETA = first.topETA
	}
	return cmd
}

func buildLine(in Input, labels LabelResolver, now time.Time) (builtLine, bool) {
	parsed, err := keys.Parse(in.Key)
	if err != nil {
		return builtLine{}, false
	}
	payload := in.Entry.Payload

	line := firstNonEmpty(str(payload, "line"), parsed.Params["line"])
	if line == "" {
		return builtLine{}, false
	}

	stopID := firstNonEmpty(str(payload, "stopId"), parsed.Params["stopid"], parsed.Params["stop_id"])
	stop := firstNonEmpty(str(payload, "stop"), parsed.Params["stop"])
	if stop == "" && stopID != "" {
		stop = firstNonEmpty(labels.StopName(stopID), stopID)
	}

	direction := firstNonEmpty(str(payload, "direction"), parsed.Params["direction"])
	directionLabel := str(payload, "directionLabel")
	if directionLabel == "" {
		directionLabel = labels.DirectionLabel(line, direction, stop)
	}
	destination := firstNonEmpty(str(payload, "destination"), parsed.Params["destination"])

	baseline := now.UnixMilli()
	if in.Entry.FetchedAt > 0 {
		baseline = in.Entry.FetchedAt
	}

	arrivals, topETA := buildArrivals(payload, line, baseline)

	return builtLine{
		line: Line{
			Line:           line,
			Direction:      direction,
			DirectionLabel: directionLabel,
			Destination:    destination,
			Status:         str(payload, "status"),
			NextArrivals:   arrivals,
		},
		provider: parsed.Provider,
		topETA:   topETA,
		stop:     stop,
		stopID:   stopID,
	}, true
}

// buildArrivals renders up to MaxArrivalsPerLine arrivals, pads with
// placeholders, and derives the line-level eta: the first concrete minute
// string wins; "DUE" only when no later arrival yields one.
func buildArrivals(payload map[string]any, line string, baselineMs int64) ([]Arrival, string) {
	out := make([]Arrival, 0, MaxArrivalsPerLine)
	topETA := ""
	sawDue := false

	for _, raw := range list(payload, "arrivals") {
		if len(out) == MaxArrivalsPerLine {
			break
		}
		item, _ := raw.(map[string]any)
		a := Arrival{
			Destination: str(item, "destination"),
			Status:      str(item, "status"),
			Direction:   str(item, "direction"),
			Line:        firstNonEmpty(str(item, "line"), line),
			ETA:         placeholderETA,
		}
		if delay, ok := number(item, "delaySeconds"); ok {
			d := int(delay)
			a.DelaySeconds = &d
		}
		if arrivalMs, ok := parseArrivalTime(str(item, "arrivalTime")); ok {
			a.ETA = etaString(arrivalMs, baselineMs)
			if a.ETA == "DUE" {
				sawDue = true
			} else if topETA == "" {
				topETA = a.ETA
			}
		}
		out = append(out, a)
	}

	for len(out) < MaxArrivalsPerLine {
		out = append(out, Arrival{ETA: placeholderETA})
	}
	if topETA == "" && sawDue {
		topETA = "DUE"
	}
	return out, topETA
}

// etaString applies the display rules: seconds are floored at zero, minutes
// round up, and anything at a minute or less renders as DUE.
func etaString(arrivalMs, baselineMs int64) string {
	diffSec := (arrivalMs - baselineMs) / 1000
	if diffSec < 0 {
		diffSec = 0
	}
	mins := (diffSec + 59) / 60
	if mins <= 1 {
		return "DUE"
	}
	return strconv.FormatInt(mins, 10) + "m"
}

func parseArrivalTime(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func list(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	l, _ := m[key].([]any)
	return l
}

func number(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
