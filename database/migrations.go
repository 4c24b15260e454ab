package database

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"reclaim/analytics"
	"reclaim/models"
)

// RunMigrations creates or updates all tables. Safe to run on every start.
func RunMigrations(db *gorm.DB) error {
	log.Info().Msg("running database migrations")

	err := db.AutoMigrate(
		&models.User{},
		&models.Phase{},
		&models.Exercise{},
		&models.Assessment{},
		&models.UserProgress{},
		&models.UserExerciseProgress{},
		&models.UserAssessmentResult{},
		&models.JournalEntry{},
		&models.Lead{},
		&models.BlogPost{},
		&models.Setting{},
		&analytics.PostView{},
	)
	if err != nil {
		log.Error().Err(err).Msg("migrations failed")
		return err
	}

	log.Info().Msg("migrations completed")
	return nil
}
