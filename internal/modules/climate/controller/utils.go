package controller

import (
	"fmt"
	"net/http"

	"climate-api/internal/modules/climate/service"
)

const apiPrefix = "/api/v1.0"

const homeBody = "Available Routes:<br/>" +
	apiPrefix + "/precipitation<br/>" +
	apiPrefix + "/stations<br/>" +
	apiPrefix + "/tobs<br/>" +
	apiPrefix + "/<start><br/>" +
	apiPrefix + "/<start>/<end>"

// parseDateRange reads the start and optional end path values. Unless
// lenient, both must be YYYY-MM-DD; otherwise they are passed through for
// plain string comparison.
func parseDateRange(r *http.Request, lenient bool) (start, end string, err error) {
	start = r.PathValue("start")
	end = r.PathValue("end")
	if lenient {
		return start, end, nil
	}
	if err := service.ValidateDate(start); err != nil {
		return "", "", fmt.Errorf("invalid 'start': %w", err)
	}
	if end != "" {
		if err := service.ValidateDate(end); err != nil {
			return "", "", fmt.Errorf("invalid 'end': %w", err)
		}
	}
	return start, end, nil
}
