package service

import (
	"context"
	"errors"
	"fmt"

	"climate-api/internal/modules/climate/repository"
	"climate-api/internal/modules/climate/types"
)

// Precipitation keying modes; they mirror the PRECIPITATION_KEY setting.
const (
	KeyByDate        = "date"
	KeyByDateStation = "date_station"
)

type Service struct {
	repository       repository.ClimateRepository
	precipitationKey string
}

func NewService(repository repository.ClimateRepository, precipitationKey string) *Service {
	if precipitationKey == "" {
		precipitationKey = KeyByDate
	}
	return &Service{repository: repository, precipitationKey: precipitationKey}
}

// cutoff returns the first date of the trailing window ending at the most
// recent measurement. ok is false when there are no measurements.
func (s *Service) cutoff(ctx context.Context) (date string, ok bool, err error) {
	maxDate, err := s.repository.GetMaxDate(ctx)
	if errors.Is(err, repository.ErrNoMeasurements) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	date, err = OneYearBefore(maxDate)
	if err != nil {
		return "", false, fmt.Errorf("stored max date: %w", err)
	}
	return date, true, nil
}

// Precipitation returns the last year of precipitation keyed by date. In
// KeyByDate mode rows sharing a date collapse and the last one read wins; in
// KeyByDateStation mode each date maps to a station→prcp object.
func (s *Service) Precipitation(ctx context.Context) (any, error) {
	cutoff, ok, err := s.cutoff(ctx)
	if err != nil {
		return nil, err
	}
	var rows []types.DatePrecipitation
	if ok {
		rows, err = s.repository.GetPrecipitationSince(ctx, cutoff)
		if err != nil {
			return nil, err
		}
	}
	if s.precipitationKey == KeyByDateStation {
		return FoldByDateStation(rows), nil
	}
	return FoldByDate(rows), nil
}

func FoldByDate(rows []types.DatePrecipitation) map[string]*float64 {
	out := make(map[string]*float64, len(rows))
	for _, r := range rows {
		out[r.Date] = r.Prcp
	}
	return out
}

func FoldByDateStation(rows []types.DatePrecipitation) map[string]map[string]*float64 {
	out := make(map[string]map[string]*float64)
	for _, r := range rows {
		byStation, ok := out[r.Date]
		if !ok {
			byStation = make(map[string]*float64)
			out[r.Date] = byStation
		}
		byStation[r.Station] = r.Prcp
	}
	return out
}

func (s *Service) Stations(ctx context.Context) ([]string, error) {
	codes, err := s.repository.GetStationCodes(ctx)
	if err != nil {
		return nil, err
	}
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}

// TemperatureObservations returns the last year of observations for the most
// active station flattened to [date, tobs, date, tobs, ...].
func (s *Service) TemperatureObservations(ctx context.Context) ([]any, error) {
	station, _, err := s.repository.GetMostActiveStation(ctx)
	if errors.Is(err, repository.ErrNoMeasurements) {
		return []any{}, nil
	}
	if err != nil {
		return nil, err
	}
	cutoff, ok, err := s.cutoff(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []any{}, nil
	}
	rows, err := s.repository.GetTemperaturesSince(ctx, station, cutoff)
	if err != nil {
		return nil, err
	}
	return Flatten(rows), nil
}

func Flatten(rows []types.DateTemperature) []any {
	out := make([]any, 0, 2*len(rows))
	for _, r := range rows {
		out = append(out, r.Date, r.Tobs)
	}
	return out
}

// TemperatureStats returns min/avg/max of tobs for date >= start, and also
// date <= end when end is non-empty. Comparison is lexicographic on the
// stored text.
func (s *Service) TemperatureStats(ctx context.Context, start, end string) (types.TemperatureStats, error) {
	if end == "" {
		return s.repository.GetTemperatureStats(ctx, start)
	}
	return s.repository.GetTemperatureStatsRange(ctx, start, end)
}
