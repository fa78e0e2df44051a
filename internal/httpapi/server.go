package httpapi

import (
	"net/http"
	"time"

	"climate-api/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux, metrics *Metrics) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
