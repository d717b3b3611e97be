package subs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const loadQuery = `
SELECT device_id, provider_id, type, config,
       COALESCE(display_type, 0)        AS display_type,
       COALESCE(scrolling, FALSE)       AS scrolling,
       COALESCE(arrivals_to_display, 0) AS arrivals_to_display
FROM subscriptions`

// PostgresSource loads subscriptions from the relational store. The config
// column holds a JSON object of string params.
type PostgresSource struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewPostgresSource(dsn string, log zerolog.Logger) (*PostgresSource, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("subscriptions db connect: %w", err)
	}
	return &PostgresSource{db: db, log: log}, nil
}

// NewPostgresSourceFromDB wraps an existing connection; used by tests.
func NewPostgresSourceFromDB(db *sql.DB, log zerolog.Logger) *PostgresSource {
	return &PostgresSource{db: sqlx.NewDb(db, "postgres"), log: log}
}

type subscriptionRow struct {
	DeviceID          string         `db:"device_id"`
	ProviderID        string         `db:"provider_id"`
	Type              string         `db:"type"`
	Config            sql.NullString `db:"config"`
	DisplayType       int            `db:"display_type"`
	Scrolling         bool           `db:"scrolling"`
	ArrivalsToDisplay int            `db:"arrivals_to_display"`
}

func (s *PostgresSource) Load(ctx context.Context) ([]Subscription, error) {
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, loadQuery); err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}

	out := make([]Subscription, 0, len(rows))
	for _, row := range rows {
		// NULL config means no params, same as an empty object.
		config := map[string]string{}
		if row.Config.Valid && row.Config.String != "" {
			if err := json.Unmarshal([]byte(row.Config.String), &config); err != nil {
				s.log.Warn().
					Str("device", row.DeviceID).
					Str("provider", row.ProviderID).
					Err(err).
					Msg("dropping subscription with undecodable config")
				continue
			}
		}
		out = append(out, Subscription{
			DeviceID:          row.DeviceID,
			ProviderID:        row.ProviderID,
			Type:              row.Type,
			Config:            config,
			DisplayType:       row.DisplayType,
			Scrolling:         row.Scrolling,
			ArrivalsToDisplay: row.ArrivalsToDisplay,
		})
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error { return s.db.Close() }
