package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"climate-api/internal/modules/climate/types"
)

//go:embed sql/get-max-date.sql
var getMaxDateSQL string

//go:embed sql/get-precipitation-since.sql
var getPrecipitationSinceSQL string

//go:embed sql/get-station-codes.sql
var getStationCodesSQL string

//go:embed sql/get-most-active-station.sql
var getMostActiveStationSQL string

//go:embed sql/get-temperatures-since.sql
var getTemperaturesSinceSQL string

//go:embed sql/get-temperature-stats.sql
var getTemperatureStatsSQL string

//go:embed sql/get-temperature-stats-range.sql
var getTemperatureStatsRangeSQL string

//go:embed sql/insert-station.sql
var insertStationSQL string

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/has-measurement.sql
var hasMeasurementSQL string

// ErrNoMeasurements is returned when the measurement table is empty.
var ErrNoMeasurements = errors.New("no measurements")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ClimateRepository interface {
	GetMaxDate(ctx context.Context) (string, error)
	GetPrecipitationSince(ctx context.Context, cutoff string) ([]types.DatePrecipitation, error)
	GetStationCodes(ctx context.Context) ([]string, error)
	GetMostActiveStation(ctx context.Context) (string, int, error)
	GetTemperaturesSince(ctx context.Context, station string, cutoff string) ([]types.DateTemperature, error)
	GetTemperatureStats(ctx context.Context, start string) (types.TemperatureStats, error)
	GetTemperatureStatsRange(ctx context.Context, start string, end string) (types.TemperatureStats, error)
}

// ClimateWriter is used by the data loader only; the API never writes.
type ClimateWriter interface {
	UpsertStation(ctx context.Context, s types.Station) error
	InsertMeasurement(ctx context.Context, m types.Measurement) (int64, error)
	HasMeasurement(ctx context.Context, station string, date string) (bool, error)
}

// Repository runs the climate queries against a pool or a transaction.
type Repository struct {
	db DBTX
}

var (
	_ ClimateRepository = (*Repository)(nil)
	_ ClimateWriter     = (*Repository)(nil)
)

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetMaxDate(ctx context.Context) (string, error) {
	var d sql.NullString
	if err := r.db.QueryRowContext(ctx, getMaxDateSQL).Scan(&d); err != nil {
		return "", fmt.Errorf("max date: %w", err)
	}
	if !d.Valid {
		return "", ErrNoMeasurements
	}
	return d.String, nil
}

func (r *Repository) GetPrecipitationSince(ctx context.Context, cutoff string) ([]types.DatePrecipitation, error) {
	rows, err := r.db.QueryContext(ctx, getPrecipitationSinceSQL, cutoff)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "precipitation")

	var out []types.DatePrecipitation
	for rows.Next() {
		var (
			rec  types.DatePrecipitation
			prcp sql.NullFloat64
		)
		if err := rows.Scan(&rec.Station, &rec.Date, &prcp); err != nil {
			return nil, err
		}
		if prcp.Valid {
			v := prcp.Float64
			rec.Prcp = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetStationCodes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, getStationCodesSQL)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "station codes")

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// GetMostActiveStation returns the station with the most measurement rows
// and its row count. Ties go to the lowest station code.
func (r *Repository) GetMostActiveStation(ctx context.Context) (string, int, error) {
	var (
		station string
		n       int
	)
	err := r.db.QueryRowContext(ctx, getMostActiveStationSQL).Scan(&station, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNoMeasurements
	}
	if err != nil {
		return "", 0, fmt.Errorf("most active station: %w", err)
	}
	return station, n, nil
}

func (r *Repository) GetTemperaturesSince(ctx context.Context, station string, cutoff string) ([]types.DateTemperature, error) {
	rows, err := r.db.QueryContext(ctx, getTemperaturesSinceSQL, station, cutoff)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "temperatures")

	var out []types.DateTemperature
	for rows.Next() {
		var rec types.DateTemperature
		if err := rows.Scan(&rec.Date, &rec.Tobs); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetTemperatureStats(ctx context.Context, start string) (types.TemperatureStats, error) {
	return r.scanStats(r.db.QueryRowContext(ctx, getTemperatureStatsSQL, start))
}

func (r *Repository) GetTemperatureStatsRange(ctx context.Context, start string, end string) (types.TemperatureStats, error) {
	return r.scanStats(r.db.QueryRowContext(ctx, getTemperatureStatsRangeSQL, start, end))
}

func (r *Repository) scanStats(row *sql.Row) (types.TemperatureStats, error) {
	var lo, avg, hi sql.NullFloat64
	if err := row.Scan(&lo, &avg, &hi); err != nil {
		return types.TemperatureStats{}, fmt.Errorf("temperature stats: %w", err)
	}
	return types.TemperatureStats{
		Min: nullableFloat(lo),
		Avg: nullableFloat(avg),
		Max: nullableFloat(hi),
	}, nil
}

func (r *Repository) UpsertStation(ctx context.Context, s types.Station) error {
	if _, err := r.db.ExecContext(ctx, insertStationSQL, s.Station, s.Name, s.Latitude, s.Longitude, s.Elevation); err != nil {
		return fmt.Errorf("upsert station %q: %w", s.Station, err)
	}
	return nil
}

func (r *Repository) InsertMeasurement(ctx context.Context, m types.Measurement) (int64, error) {
	var prcp any
	if m.Prcp != nil {
		prcp = *m.Prcp
	}
	res, err := r.db.ExecContext(ctx, insertMeasurementSQL, m.Station, m.Date, prcp, m.Tobs)
	if err != nil {
		return 0, fmt.Errorf("insert measurement %s/%s: %w", m.Station, m.Date, err)
	}
	return res.LastInsertId()
}

func (r *Repository) HasMeasurement(ctx context.Context, station string, date string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, hasMeasurementSQL, station, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("has measurement %s/%s: %w", station, date, err)
	}
	return exists, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close rows", "query", what, "error", err)
	}
}
