package subs

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T) (*PostgresSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSourceFromDB(db, zerolog.Nop()), mock
}

func subscriptionColumns() []string {
	return []string{"device_id", "provider_id", "type", "config", "display_type", "scrolling", "arrivals_to_display"}
}

func TestPostgresSource_Load(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT device_id, provider_id").WillReturnRows(
		sqlmock.NewRows(subscriptionColumns()).
			AddRow("d1", "mta", "arrivals", `{"line":"L","stop":"lorimer"}`, 2, true, 3).
			AddRow("d2", "mta", "arrivals", `{}`, 0, false, 0),
	)

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Subscription{
		DeviceID:          "d1",
		ProviderID:        "mta",
		Type:              "arrivals",
		Config:            map[string]string{"line": "L", "stop": "lorimer"},
		DisplayType:       2,
		Scrolling:         true,
		ArrivalsToDisplay: 3,
	}, got[0])

	assert.Equal(t, "d2", got[1].DeviceID)
	assert.Empty(t, got[1].Config)
	assert.Zero(t, got[1].DisplayType, "unset options stay zero; fanout applies defaults")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_DropsBadConfig(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT device_id, provider_id").WillReturnRows(
		sqlmock.NewRows(subscriptionColumns()).
			AddRow("d1", "mta", "arrivals", `{not json`, 0, false, 0).
			AddRow("d2", "mta", "arrivals", `{"stop":"x"}`, 0, false, 0),
	)

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1, "row with undecodable config is dropped, not fatal")
	assert.Equal(t, "d2", got[0].DeviceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_NullConfigColumn(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT device_id, provider_id").WillReturnRows(
		sqlmock.NewRows(subscriptionColumns()).
			AddRow("d1", "mta", "arrivals", nil, 0, false, 0).
			AddRow("d2", "mta", "arrivals", `{"stop":"x"}`, 0, false, 0),
	)

	got, err := src.Load(context.Background())
	require.NoError(t, err, "a NULL config must not fail the whole load")
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].DeviceID)
	assert.Empty(t, got[0].Config)
	assert.Equal(t, map[string]string{"stop": "x"}, got[1].Config)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_EmptyConfigColumn(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT device_id, provider_id").WillReturnRows(
		sqlmock.NewRows(subscriptionColumns()).
			AddRow("d1", "mta", "arrivals", "", 0, false, 0),
	)

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Config)
	assert.Empty(t, got[0].Config)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_QueryError(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT device_id, provider_id").WillReturnError(errors.New("connection reset"))

	_, err := src.Load(context.Background())
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatic_Load(t *testing.T) {
	want := []Subscription{{DeviceID: "d1", ProviderID: "p", Type: "arrivals"}}
	got, err := Static(want).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFunc_Load(t *testing.T) {
	src := Func(func(context.Context) ([]Subscription, error) {
		return []Subscription{{DeviceID: "d1"}}, nil
	})
	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}
