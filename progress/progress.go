package progress

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reclaim/common"
	"reclaim/curriculum"
	"reclaim/metrics"
	"reclaim/models"
)

const (
	StatusLocked     = "locked"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ErrExerciseNotFound is returned when the exercise id does not exist.
var ErrExerciseNotFound = common.NotFound("Exercise")

// Status derives the phase status from its counts.
func Status(completed, total int) string {
	if total > 0 && completed == total {
		return StatusCompleted
	}
	return StatusInProgress
}

// Service owns exercise progress and the per-phase aggregates derived
// from it.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Result is what a save returns. PhaseCompleted is true only for the save
// that moved the phase to completed.
type Result struct {
	ExerciseProgress models.UserExerciseProgress `json:"exerciseProgress"`
	PhaseProgress    models.UserProgress         `json:"phaseProgress"`
	PhaseCompleted   bool                        `json:"phaseCompleted"`
}

// RecordExerciseCompletion marks an exercise completed for the user.
func (s *Service) RecordExerciseCompletion(ctx context.Context, userID, exerciseID uint, responses json.RawMessage) (*Result, error) {
	return s.SaveExerciseProgress(ctx, userID, exerciseID, responses, true)
}

// SaveExerciseProgress stores the user's responses for an exercise and
// recomputes the owning phase aggregate in the same transaction. The phase
// row is locked first, so concurrent saves in one phase serialize and each
// recount sees every earlier write. Completion is sticky: a later draft save
// does not un-complete an exercise.
func (s *Service) SaveExerciseProgress(ctx context.Context, userID, exerciseID uint, responses json.RawMessage, completed bool) (*Result, error) {
	db := s.db.WithContext(ctx)

	var exercise models.Exercise
	if err := db.First(&exercise, exerciseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, common.Internal("Failed to load exercise", err)
	}

	payload, err := curriculum.ValidateResponses(exercise.Content, responses, completed)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &Result{}
	err = db.Transaction(func(tx *gorm.DB) error {
		phaseProgress, err := lockPhaseProgress(tx, userID, exercise.PhaseID)
		if err != nil {
			return err
		}
		wasCompleted := phaseProgress.Status == StatusCompleted

		exerciseProgress, err := upsertExerciseProgress(tx, userID, exercise.ID, payload, completed, now)
		if err != nil {
			return err
		}

		if err := recount(tx, phaseProgress, now); err != nil {
			return err
		}

		if !wasCompleted && phaseProgress.Status == StatusCompleted {
			result.PhaseCompleted = true
			if err := advanceCurrentPhase(tx, userID, exercise.PhaseID); err != nil {
				return err
			}
		}

		result.ExerciseProgress = *exerciseProgress
		result.PhaseProgress = *phaseProgress
		return nil
	})
	if err != nil {
		return nil, common.Internal("Failed to save exercise progress", err)
	}

	metrics.ExerciseSaves.WithLabelValues(strconv.FormatBool(result.ExerciseProgress.IsCompleted)).Inc()
	if result.PhaseCompleted {
		metrics.PhaseCompletions.Inc()
		log.Info().Uint("user_id", userID).Uint("phase_id", exercise.PhaseID).Msg("phase completed")
	}
	return result, nil
}

// lockPhaseProgress makes sure the (user, phase) row exists and takes a row
// lock on it. SQLite has no row locks; its writer lock already serializes.
func lockPhaseProgress(tx *gorm.DB, userID, phaseID uint) (*models.UserProgress, error) {
	placeholder := models.UserProgress{UserID: userID, PhaseID: phaseID, Status: StatusInProgress}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "phase_id"}},
		DoNothing: true,
	}).Create(&placeholder).Error
	if err != nil {
		return nil, err
	}

	var row models.UserProgress
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND phase_id = ?", userID, phaseID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func upsertExerciseProgress(tx *gorm.DB, userID, exerciseID uint, responses datatypes.JSON, completed bool, now time.Time) (*models.UserExerciseProgress, error) {
	var row models.UserExerciseProgress
	err := tx.Where("user_id = ? AND exercise_id = ?", userID, exerciseID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.UserExerciseProgress{UserID: userID, ExerciseID: exerciseID}
	} else if err != nil {
		return nil, err
	}

	row.Responses = responses
	if completed && !row.IsCompleted {
		row.IsCompleted = true
		row.CompletedAt = &now
	}

	if err := tx.Save(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// recount rebuilds the aggregate from source rows; it never increments.
func recount(tx *gorm.DB, row *models.UserProgress, now time.Time) error {
	var total int64
	if err := tx.Model(&models.Exercise{}).Where("phase_id = ?", row.PhaseID).Count(&total).Error; err != nil {
		return err
	}

	var completed int64
	err := tx.Model(&models.UserExerciseProgress{}).
		Joins("JOIN exercises ON exercises.id = user_exercise_progresses.exercise_id").
		Where("user_exercise_progresses.user_id = ? AND user_exercise_progresses.is_completed = ? AND exercises.phase_id = ?",
			row.UserID, true, row.PhaseID).
		Count(&completed).Error
	if err != nil {
		return err
	}

	row.ExercisesCompleted = int(completed)
	row.TotalExercises = int(total)
	row.Status = Status(row.ExercisesCompleted, row.TotalExercises)
	if row.Status == StatusCompleted {
		if row.CompletedAt == nil {
			row.CompletedAt = &now
		}
	} else {
		row.CompletedAt = nil
	}

	return tx.Save(row).Error
}

// advanceCurrentPhase moves the user's phase pointer past a phase they just
// finished, if the pointer is still on it and a next phase exists.
func advanceCurrentPhase(tx *gorm.DB, userID, phaseID uint) error {
	var phase models.Phase
	if err := tx.First(&phase, phaseID).Error; err != nil {
		return err
	}

	var next int64
	if err := tx.Model(&models.Phase{}).Where("phase_order = ?", phase.Order+1).Count(&next).Error; err != nil {
		return err
	}
	if next == 0 {
		return nil
	}

	return tx.Model(&models.User{}).
		Where("id = ? AND current_phase = ?", userID, phase.Order).
		Update("current_phase", phase.Order+1).Error
}

// Reconcile recomputes one phase aggregate from the exercise rows. Phases
// the user never touched stay without a row.
func (s *Service) Reconcile(ctx context.Context, userID, phaseID uint) (*models.UserProgress, error) {
	var out *models.UserProgress
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows int64
		if err := tx.Model(&models.UserProgress{}).Where("user_id = ? AND phase_id = ?", userID, phaseID).Count(&rows).Error; err != nil {
			return err
		}
		if rows == 0 {
			var touched int64
			err := tx.Model(&models.UserExerciseProgress{}).
				Joins("JOIN exercises ON exercises.id = user_exercise_progresses.exercise_id").
				Where("user_exercise_progresses.user_id = ? AND exercises.phase_id = ?", userID, phaseID).
				Count(&touched).Error
			if err != nil {
				return err
			}
			if touched == 0 {
				return nil
			}
		}

		row, err := lockPhaseProgress(tx, userID, phaseID)
		if err != nil {
			return err
		}
		if err := recount(tx, row, s.now()); err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

// ReconcileUser runs Reconcile for every phase.
func (s *Service) ReconcileUser(ctx context.Context, userID uint) ([]models.UserProgress, error) {
	var phases []models.Phase
	if err := s.db.WithContext(ctx).Order("phase_order ASC").Find(&phases).Error; err != nil {
		return nil, err
	}

	rows := []models.UserProgress{}
	for _, phase := range phases {
		row, err := s.Reconcile(ctx, userID, phase.ID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

// PhaseProgressView is one phase as seen by a user.
type PhaseProgressView struct {
	PhaseID            uint       `json:"phaseId"`
	Order              int        `json:"order"`
	Letter             string     `json:"letter"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	ExercisesCompleted int        `json:"exercisesCompleted"`
	TotalExercises     int        `json:"totalExercises"`
	CompletedAt        *time.Time `json:"completedAt"`
}

// ListProgress reports every phase for the user. Phases without a progress
// row are shown as locked.
func (s *Service) ListProgress(ctx context.Context, userID uint) ([]PhaseProgressView, error) {
	db := s.db.WithContext(ctx)

	var phases []models.Phase
	if err := db.Order("phase_order ASC").Find(&phases).Error; err != nil {
		return nil, err
	}

	var rows []models.UserProgress
	if err := db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	byPhase := make(map[uint]models.UserProgress, len(rows))
	for _, row := range rows {
		byPhase[row.PhaseID] = row
	}

	var counts []struct {
		PhaseID uint
		Total   int
	}
	err := db.Model(&models.Exercise{}).
		Select("phase_id, COUNT(*) AS total").
		Group("phase_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[uint]int, len(counts))
	for _, c := range counts {
		totals[c.PhaseID] = c.Total
	}

	views := make([]PhaseProgressView, 0, len(phases))
	for _, phase := range phases {
		view := PhaseProgressView{
			PhaseID:        phase.ID,
			Order:          phase.Order,
			Letter:         phase.Letter,
			Name:           phase.Name,
			Status:         StatusLocked,
			TotalExercises: totals[phase.ID],
		}
		if row, ok := byPhase[phase.ID]; ok {
			view.Status = row.Status
			view.ExercisesCompleted = row.ExercisesCompleted
			view.TotalExercises = row.TotalExercises
			view.CompletedAt = row.CompletedAt
		}
		views = append(views, view)
	}
	return views, nil
}

// ListExerciseProgress returns the user's exercise rows, optionally
// restricted to one phase.
func (s *Service) ListExerciseProgress(ctx context.Context, userID uint, phaseID *uint) ([]models.UserExerciseProgress, error) {
	query := s.db.WithContext(ctx).Model(&models.UserExerciseProgress{}).
		Where("user_exercise_progresses.user_id = ?", userID)
	if phaseID != nil {
		query = query.
			Joins("JOIN exercises ON exercises.id = user_exercise_progresses.exercise_id").
			Where("exercises.phase_id = ?", *phaseID)
	}

	rows := []models.UserExerciseProgress{}
	if err := query.Order("user_exercise_progresses.exercise_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
