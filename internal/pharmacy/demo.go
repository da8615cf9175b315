package pharmacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medqueue/pharmacy/pkg/enums/pharmacystate"
)

const pharmacyDemoSeedApplication = "pharmacy_demo"

// ApplyDemoSeeds creates a small, realistic worklist so a fresh install has
// something to dispense. Seeds are tracked in Mongo and applied once.
func ApplyDemoSeeds(ctx context.Context, repo PrescriptionRepository, cache *WorklistStateCache, db *mongo.Database, logger apt.Logger) error {
	if db == nil {
		return errors.New("database is required for demo seeding")
	}

	tracker := seed.NewMongoTracker(db)

	logger.Info("Applying demo pharmacy seeds")
	if err := seed.Apply(ctx, tracker, buildDemoPrescriptionSeeds(repo), pharmacyDemoSeedApplication); err != nil {
		return err
	}
	logger.Info("Demo pharmacy seeds applied successfully")

	// Seeded records were written straight to the database, so pull a fresh
	// snapshot into the worklist.
	if err := cache.Reload(ctx); err != nil {
		logger.Errorf("Failed to reload worklist after seeding: %v", err)
		return fmt.Errorf("reload worklist after seeding: %w", err)
	}
	logger.Info("Worklist reloaded after demo seeding", "entries", cache.Count())

	return nil
}

func buildDemoPrescriptionSeeds(repo PrescriptionRepository) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "2025-08-30_demo_prescriptions_v1",
			Description: "Create demo pharmacy worklist entries",
			Run: func(ctx context.Context) error {
				return seedDemoPrescriptions(ctx, repo)
			},
		},
	}
}

func seedDemoPrescriptions(ctx context.Context, repo PrescriptionRepository) error {
	demo := []Prescription{
		{
			ID:     9001,
			Token:  14,
			Name:   "Rosa Delgado",
			Age:    58,
			Gender: "F",
			Text:   "Metformin 500mg, twice daily after meals\nAtorvastatin 20mg, once at night",
			Status: StageStatus,
		},
		{
			ID:     9002,
			Token:  15,
			Name:   "Samuel Okafor",
			Age:    34,
			Gender: "M",
			Text:   "Amoxicillin 500mg, three times daily for 7 days",
			Status: StageStatus,
		},
		{
			ID:            9003,
			Token:         16,
			Name:          "Mei Lin",
			Age:           41,
			Gender:        "F",
			Text:          "Ibuprofen 400mg as needed, max 3 per day",
			PharmacyState: pharmacystate.States.Prepared.Code(),
			Status:        StageStatus,
		},
	}

	for i := range demo {
		if err := repo.Create(ctx, &demo[i]); err != nil {
			return fmt.Errorf("cannot seed demo prescription %d: %w", demo[i].ID, err)
		}
	}

	return nil
}
