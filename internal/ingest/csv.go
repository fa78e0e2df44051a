package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"climate-api/internal/modules/climate/repository"
	"climate-api/internal/modules/climate/service"
	"climate-api/internal/modules/climate/types"
)

var (
	stationColumns     = []string{"station", "name", "latitude", "longitude", "elevation"}
	measurementColumns = []string{"station", "date", "prcp", "tobs"}
)

// Counts reports how many rows a Load wrote. Skipped counts measurement
// rows whose station and date were already stored before the load.
type Counts struct {
	Stations     int
	Measurements int
	Skipped      int
}

// Load reads both CSV files and writes them in one transaction. Stations
// are upserted; measurements are appended in file order, except those whose
// (station, date) was already present, so reloading a file is a no-op.
func Load(ctx context.Context, db *sql.DB, stations, measurements io.Reader) (Counts, error) {
	stationRows, err := ReadStations(stations)
	if err != nil {
		return Counts{}, err
	}
	measurementRows, err := ReadMeasurements(measurements)
	if err != nil {
		return Counts{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("begin load: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	repo := repository.NewRepository(tx)
	var counts Counts
	for _, s := range stationRows {
		if err := repo.UpsertStation(ctx, s); err != nil {
			return Counts{}, err
		}
		counts.Stations++
	}
	// Checked before inserting so duplicates inside one file are kept.
	present := make([]bool, len(measurementRows))
	for i, m := range measurementRows {
		if present[i], err = repo.HasMeasurement(ctx, m.Station, m.Date); err != nil {
			return Counts{}, err
		}
	}
	for i, m := range measurementRows {
		if present[i] {
			counts.Skipped++
			continue
		}
		if _, err := repo.InsertMeasurement(ctx, m); err != nil {
			return Counts{}, err
		}
		counts.Measurements++
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("commit load: %w", err)
	}
	slog.Info("csv load complete",
		"stations", counts.Stations,
		"measurements", counts.Measurements,
		"skipped", counts.Skipped,
	)
	return counts, nil
}

func ReadStations(r io.Reader) ([]types.Station, error) {
	var out []types.Station
	err := readCSV(r, "stations", stationColumns, func(line int, get func(string) string) error {
		s := types.Station{
			Station: get("station"),
			Name:    get("name"),
		}
		if s.Station == "" {
			return fmt.Errorf("line %d: station is required", line)
		}
		var err error
		if s.Latitude, err = parseFloat(line, "latitude", get("latitude")); err != nil {
			return err
		}
		if s.Longitude, err = parseFloat(line, "longitude", get("longitude")); err != nil {
			return err
		}
		if s.Elevation, err = parseFloat(line, "elevation", get("elevation")); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func ReadMeasurements(r io.Reader) ([]types.Measurement, error) {
	var out []types.Measurement
	err := readCSV(r, "measurements", measurementColumns, func(line int, get func(string) string) error {
		m := types.Measurement{
			Station: get("station"),
			Date:    get("date"),
		}
		if m.Station == "" {
			return fmt.Errorf("line %d: station is required", line)
		}
		if err := service.ValidateDate(m.Date); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if raw := get("prcp"); raw != "" {
			prcp, err := parseFloat(line, "prcp", raw)
			if err != nil {
				return err
			}
			m.Prcp = &prcp
		}
		tobs, err := parseFloat(line, "tobs", get("tobs"))
		if err != nil {
			return err
		}
		m.Tobs = tobs
		out = append(out, m)
		return nil
	})
	return out, err
}

// readCSV maps columns by header name so files may order them freely.
func readCSV(r io.Reader, what string, required []string, row func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s csv: missing header", what)
	}
	if err != nil {
		return fmt.Errorf("%s csv: read header: %w", what, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("%s csv: missing column %q", what, col)
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%s csv: %w", what, err)
		}
		get := func(col string) string {
			return strings.TrimSpace(rec[index[col]])
		}
		if err := row(line, get); err != nil {
			return fmt.Errorf("%s csv: %w", what, err)
		}
	}
}

func parseFloat(line int, col, raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q", line, col, raw)
	}
	return f, nil
}
