// Package gtfs provides static display-label lookups derived from GTFS
// feeds: stop names by stop id and direction labels by line/direction/stop.
// Tables are plain YAML so operators can curate them without a feed build.
package gtfs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table holds the label lookups. A nil *Table resolves nothing, which the
// composer tolerates.
type Table struct {
	// Stops maps stop id → display name.
	Stops map[string]string `yaml:"stops"`
	// Directions maps "line|direction|stop", "line|direction", or
	// "direction" → label; lookups try most specific first.
	Directions map[string]string `yaml:"directions"`
}

// Load reads a label table from a YAML file.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse label table: %w", err)
	}
	return &t, nil
}

// StopName resolves a stop id to its display name, or "" when unknown.
func (t *Table) StopName(stopID string) string {
	if t == nil {
		return ""
	}
	return t.Stops[stopID]
}

// DirectionLabel resolves a human label for a line/direction/stop triple,
// trying the most specific key first.
func (t *Table) DirectionLabel(line, direction, stop string) string {
	if t == nil || direction == "" {
		return ""
	}
	if label, ok := t.Directions[line+"|"+direction+"|"+stop]; ok {
		return label
	}
	if label, ok := t.Directions[line+"|"+direction]; ok {
		return label
	}
	return t.Directions[direction]
}
