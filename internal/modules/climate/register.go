package climate

import (
	"database/sql"
	"net/http"

	"climate-api/internal/config"
	"climate-api/internal/modules/climate/controller"
	"climate-api/internal/modules/climate/repository"
	"climate-api/internal/modules/climate/service"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, cfg config.Config) {
	climateRepository := repository.NewRepository(db)
	climateService := service.NewService(climateRepository, cfg.PrecipitationKey)
	climateController := controller.NewClimateController(climateService, cfg.LenientDates)
	climateController.RegisterRoutes(mux)
}
