package controller

import (
	"context"
	"net/http"

	"climate-api/internal/modules/climate/types"
)

// ClimateService is the query surface the HTTP handlers need.
type ClimateService interface {
	Precipitation(ctx context.Context) (any, error)
	Stations(ctx context.Context) ([]string, error)
	TemperatureObservations(ctx context.Context) ([]any, error)
	TemperatureStats(ctx context.Context, start, end string) (types.TemperatureStats, error)
}

type ClimateController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type climateControllerImpl struct {
	service      ClimateService
	lenientDates bool
}

func NewClimateController(service ClimateService, lenientDates bool) ClimateController {
	return &climateControllerImpl{service: service, lenientDates: lenientDates}
}

func (c *climateControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleHome)
	mux.HandleFunc("GET "+apiPrefix+"/precipitation", c.handlePrecipitation)
	mux.HandleFunc("GET "+apiPrefix+"/stations", c.handleStations)
	mux.HandleFunc("GET "+apiPrefix+"/tobs", c.handleTobs)
	mux.HandleFunc("GET "+apiPrefix+"/{start}", c.handleStats)
	mux.HandleFunc("GET "+apiPrefix+"/{start}/{end}", c.handleStats)
}
