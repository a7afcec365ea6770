// Command seed-models loads the per-character model prices used to meter
// Gemini calls. Existing rows are updated in place.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/database"
	"docutalk-backend/internal/models"
	"docutalk-backend/pkg/logger"

	"go.uber.org/zap"
)

//go:embed service_models.json
var serviceModelsJSON []byte

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var items []models.ServiceModel
	if err := json.Unmarshal(serviceModelsJSON, &items); err != nil {
		logger.Fatal("Invalid service_models.json", zap.Error(err))
	}

	ctx := context.Background()
	st, closeStore, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	for _, m := range items {
		if err := st.UpsertServiceModel(ctx, m); err != nil {
			logger.Fatal("Failed to upsert service model", zap.String("name", m.Name), zap.Error(err))
		}
		logger.Info("Service model seeded", zap.String("name", m.Name), zap.Float64("price_per_unit", m.PricePerUnit))
	}
}
