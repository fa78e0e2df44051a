package controller

import (
	"log/slog"
	"net/http"

	"climate-api/internal/utils"
)

func (c *climateControllerImpl) handleHome(w http.ResponseWriter, r *http.Request) {
	utils.WriteText(w, http.StatusOK, "text/html; charset=utf-8", homeBody)
}

func (c *climateControllerImpl) handlePrecipitation(w http.ResponseWriter, r *http.Request) {
	prcp, err := c.service.Precipitation(r.Context())
	if err != nil {
		slog.Error("precipitation query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, prcp)
}

func (c *climateControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.service.Stations(r.Context())
	if err != nil {
		slog.Error("stations query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *climateControllerImpl) handleTobs(w http.ResponseWriter, r *http.Request) {
	tobs, err := c.service.TemperatureObservations(r.Context())
	if err != nil {
		slog.Error("tobs query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, tobs)
}

// handleStats serves both /{start} and /{start}/{end}; end is empty for the
// former.
func (c *climateControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, c.lenientDates)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := c.service.TemperatureStats(r.Context(), start, end)
	if err != nil {
		slog.Error("temperature stats query failed", "start", start, "end", end, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}
