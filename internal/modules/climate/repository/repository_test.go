package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"climate-api/internal/migrate"
	"climate-api/internal/modules/climate/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed %q: %v", s, err)
		}
	}
}

const seedStations = `INSERT INTO station (station, name, latitude, longitude, elevation) VALUES
	('USC00519397', 'WAIKIKI 717.2, HI US', 21.2716, -157.8168, 3.0),
	('USC00513117', 'KANEOHE 838.1, HI US', 21.4234, -157.8015, 14.6),
	('USC00519281', 'WAIHEE 837.5, HI US', 21.45167, -157.84889, 32.9)`

func ptr(f float64) *float64 { return &f }

func TestGetMaxDate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table returns ErrNoMeasurements", func(t *testing.T) {
		repo := NewRepository(setupTestDB(t))
		_, err := repo.GetMaxDate(ctx)
		if !errors.Is(err, ErrNoMeasurements) {
			t.Fatalf("GetMaxDate err = %v, want ErrNoMeasurements", err)
		}
	})

	t.Run("returns lexicographic maximum", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
			('USC00519397', '2017-08-23', 0.0, 81),
			('USC00513117', '2016-01-01', 0.1, 70),
			('USC00519281', '2017-08-18', NULL, 79)`)
		got, err := NewRepository(db).GetMaxDate(ctx)
		if err != nil {
			t.Fatalf("GetMaxDate: %v", err)
		}
		if got != "2017-08-23" {
			t.Errorf("GetMaxDate = %q, want 2017-08-23", got)
		}
	})
}

func TestGetPrecipitationSince(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519397', '2016-08-22', 0.5, 75),
		('USC00519397', '2016-08-23', 0.0, 81),
		('USC00513117', '2016-08-23', 0.15, 76),
		('USC00519281', '2017-08-23', NULL, 77)`)

	got, err := NewRepository(db).GetPrecipitationSince(ctx, "2016-08-23")
	if err != nil {
		t.Fatalf("GetPrecipitationSince: %v", err)
	}
	want := []types.DatePrecipitation{
		{Station: "USC00519397", Date: "2016-08-23", Prcp: ptr(0.0)},
		{Station: "USC00513117", Date: "2016-08-23", Prcp: ptr(0.15)},
		{Station: "USC00519281", Date: "2017-08-23", Prcp: nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetPrecipitationSince mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStationCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		got, err := NewRepository(setupTestDB(t)).GetStationCodes(ctx)
		if err != nil {
			t.Fatalf("GetStationCodes: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("GetStationCodes = %v, want empty", got)
		}
	})

	t.Run("insertion order", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, seedStations)
		got, err := NewRepository(db).GetStationCodes(ctx)
		if err != nil {
			t.Fatalf("GetStationCodes: %v", err)
		}
		want := []string{"USC00519397", "USC00513117", "USC00519281"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("GetStationCodes mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGetMostActiveStation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table returns ErrNoMeasurements", func(t *testing.T) {
		_, _, err := NewRepository(setupTestDB(t)).GetMostActiveStation(ctx)
		if !errors.Is(err, ErrNoMeasurements) {
			t.Fatalf("GetMostActiveStation err = %v, want ErrNoMeasurements", err)
		}
	})

	t.Run("picks the highest count", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
			('USC00519397', '2017-01-01', 0, 70),
			('USC00519281', '2017-01-01', 0, 70),
			('USC00519281', '2017-01-02', 0, 71),
			('USC00519281', '2017-01-03', 0, 72),
			('USC00513117', '2017-01-01', 0, 70),
			('USC00513117', '2017-01-02', 0, 70)`)
		station, n, err := NewRepository(db).GetMostActiveStation(ctx)
		if err != nil {
			t.Fatalf("GetMostActiveStation: %v", err)
		}
		if station != "USC00519281" || n != 3 {
			t.Errorf("GetMostActiveStation = (%q, %d), want (USC00519281, 3)", station, n)
		}
	})

	t.Run("ties go to the lowest code", func(t *testing.T) {
		db := setupTestDB(t)
		seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
			('USC00519397', '2017-01-01', 0, 70),
			('USC00513117', '2017-01-01', 0, 70)`)
		station, _, err := NewRepository(db).GetMostActiveStation(ctx)
		if err != nil {
			t.Fatalf("GetMostActiveStation: %v", err)
		}
		if station != "USC00513117" {
			t.Errorf("GetMostActiveStation = %q, want USC00513117", station)
		}
	})
}

func TestGetTemperaturesSince(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519281', '2016-08-17', 0, 76),
		('USC00519281', '2016-08-18', 0, 80),
		('USC00519397', '2016-08-19', 0, 81),
		('USC00519281', '2017-08-18', 0, 79)`)

	got, err := NewRepository(db).GetTemperaturesSince(ctx, "USC00519281", "2016-08-18")
	if err != nil {
		t.Fatalf("GetTemperaturesSince: %v", err)
	}
	want := []types.DateTemperature{
		{Date: "2016-08-18", Tobs: 80},
		{Date: "2017-08-18", Tobs: 79},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetTemperaturesSince mismatch (-want +got):\n%s", diff)
	}
}

func TestGetTemperatureStats(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519397', '2017-08-19', 0.0, 78),
		('USC00519397', '2017-08-20', 0.0, 79),
		('USC00519397', '2017-08-21', 0.1, 80),
		('USC00519397', '2017-08-22', 0.1, 84)`)
	repo := NewRepository(db)

	tests := []struct {
		name       string
		start, end string
		want       types.TemperatureStats
	}{
		{name: "open range", start: "2017-08-20", want: types.TemperatureStats{Min: ptr(79), Avg: ptr(81), Max: ptr(84)}},
		{name: "closed range", start: "2017-08-20", end: "2017-08-21", want: types.TemperatureStats{Min: ptr(79), Avg: ptr(79.5), Max: ptr(80)}},
		{name: "no rows", start: "2018-01-01", want: types.TemperatureStats{}},
		{name: "start after end", start: "2017-08-22", end: "2017-08-19", want: types.TemperatureStats{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got types.TemperatureStats
				err error
			)
			if tt.end == "" {
				got, err = repo.GetTemperatureStats(ctx, tt.start)
			} else {
				got, err = repo.GetTemperatureStatsRange(ctx, tt.start, tt.end)
			}
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetTemperatureStats_FromEarliestDateMatchesWholeTable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519281', '2017-08-23', 0.0, 81),
		('USC00513117', '2010-01-01', 0.08, 65),
		('USC00519397', '2012-06-15', NULL, 74),
		('USC00519281', '2014-02-03', 0.3, 58),
		('USC00513117', '2016-11-30', 0.0, 77)`)
	repo := NewRepository(db)

	var (
		minDate     string
		lo, avg, hi float64
	)
	if err := db.QueryRow(`SELECT MIN(date) FROM measurement`).Scan(&minDate); err != nil {
		t.Fatalf("min date: %v", err)
	}
	if err := db.QueryRow(`SELECT MIN(tobs), AVG(tobs), MAX(tobs) FROM measurement`).Scan(&lo, &avg, &hi); err != nil {
		t.Fatalf("global stats: %v", err)
	}

	got, err := repo.GetTemperatureStats(ctx, minDate)
	if err != nil {
		t.Fatalf("GetTemperatureStats: %v", err)
	}
	want := types.TemperatureStats{Min: ptr(lo), Avg: ptr(avg), Max: ptr(hi)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats from %s mismatch (-want +got):\n%s", minDate, diff)
	}
	if !(*got.Min <= *got.Avg && *got.Avg <= *got.Max) {
		t.Errorf("stats = [%v %v %v], want min <= avg <= max", *got.Min, *got.Avg, *got.Max)
	}
}

func TestGetTemperatureStatsRange_Ordered(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519397', '2017-08-19', 0.0, 78),
		('USC00519281', '2017-08-19', 0.2, 71),
		('USC00513117', '2017-08-20', 0.0, 85),
		('USC00519397', '2017-08-21', 0.1, 80),
		('USC00519281', '2017-08-22', NULL, 76)`)
	repo := NewRepository(db)

	ranges := [][2]string{
		{"2017-08-19", "2017-08-19"},
		{"2017-08-19", "2017-08-22"},
		{"2017-08-20", "2017-08-21"},
		{"2017-08-21", "2017-08-22"},
	}
	for _, r := range ranges {
		got, err := repo.GetTemperatureStatsRange(ctx, r[0], r[1])
		if err != nil {
			t.Fatalf("GetTemperatureStatsRange(%s, %s): %v", r[0], r[1], err)
		}
		if got.Min == nil || got.Avg == nil || got.Max == nil {
			t.Fatalf("GetTemperatureStatsRange(%s, %s) = %+v, want all values", r[0], r[1], got)
		}
		if !(*got.Min <= *got.Avg && *got.Avg <= *got.Max) {
			t.Errorf("GetTemperatureStatsRange(%s, %s) = [%v %v %v], want min <= avg <= max",
				r[0], r[1], *got.Min, *got.Avg, *got.Max)
		}
	}
}

func TestWriter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewRepository(db)

	st := types.Station{Station: "USC00519397", Name: "WAIKIKI", Latitude: 21.27, Longitude: -157.81, Elevation: 3}
	if err := repo.UpsertStation(ctx, st); err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	st.Name = "WAIKIKI 717.2, HI US"
	if err := repo.UpsertStation(ctx, st); err != nil {
		t.Fatalf("UpsertStation (update): %v", err)
	}

	var name string
	if err := db.QueryRow(`SELECT name FROM station WHERE station = ?`, st.Station).Scan(&name); err != nil {
		t.Fatalf("select name: %v", err)
	}
	if name != "WAIKIKI 717.2, HI US" {
		t.Errorf("name = %q after upsert", name)
	}

	id, err := repo.InsertMeasurement(ctx, types.Measurement{Station: st.Station, Date: "2010-01-01", Tobs: 65})
	if err != nil {
		t.Fatalf("InsertMeasurement: %v", err)
	}
	if id <= 0 {
		t.Errorf("InsertMeasurement id = %d, want > 0", id)
	}

	var prcp sql.NullFloat64
	if err := db.QueryRow(`SELECT prcp FROM measurement WHERE id = ?`, id).Scan(&prcp); err != nil {
		t.Fatalf("select prcp: %v", err)
	}
	if prcp.Valid {
		t.Errorf("prcp = %v, want NULL", prcp.Float64)
	}

	if _, err := repo.InsertMeasurement(ctx, types.Measurement{Station: "NOPE", Date: "2010-01-01", Tobs: 65}); err == nil {
		t.Error("InsertMeasurement for unknown station succeeded, want foreign key error")
	}

	for _, tt := range []struct {
		station, date string
		want          bool
	}{
		{station: st.Station, date: "2010-01-01", want: true},
		{station: st.Station, date: "2010-01-02", want: false},
		{station: "USC00519281", date: "2010-01-01", want: false},
	} {
		got, err := repo.HasMeasurement(ctx, tt.station, tt.date)
		if err != nil {
			t.Fatalf("HasMeasurement(%s, %s): %v", tt.station, tt.date, err)
		}
		if got != tt.want {
			t.Errorf("HasMeasurement(%s, %s) = %v, want %v", tt.station, tt.date, got, tt.want)
		}
	}
}
