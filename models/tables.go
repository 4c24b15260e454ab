package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TierFree     = "free"
	TierLifetime = "lifetime"

	SubscriptionInactive = "inactive"
	SubscriptionActive   = "active"
)

// User is an account. Paid access is the lifetime tier with an active
// status; see HasLifetimeAccess.
type User struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Email                 string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash          string     `gorm:"not null" json:"-"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	CurrentPhase          int        `gorm:"not null;default:1" json:"currentPhase"` // phase order, not id
	SubscriptionTier      string     `gorm:"not null;default:'free'" json:"subscriptionTier"`
	SubscriptionStatus    string     `gorm:"not null;default:'inactive'" json:"subscriptionStatus"`
	IsAdmin               bool       `gorm:"not null;default:false" json:"isAdmin"`
	StripeCustomerID      string     `json:"-"`
	StripePaymentIntentID string     `gorm:"index" json:"-"`
	AmountPaidCents       int64      `json:"amountPaidCents"`
	PaidAt                *time.Time `json:"paidAt"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func (u *User) HasLifetimeAccess() bool {
	return u.SubscriptionTier == TierLifetime && u.SubscriptionStatus == SubscriptionActive
}

type Phase struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Letter      string `gorm:"size:1;not null" json:"letter"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Order       int    `gorm:"column:phase_order;uniqueIndex;not null" json:"order"`
	IsLocked    bool   `gorm:"not null;default:false" json:"isLocked"`
}

// Exercise.Content is interpreted per Type; see curriculum.ExerciseContent.
type Exercise struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	PhaseID          uint           `gorm:"not null;index" json:"phaseId"`
	Title            string         `gorm:"not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Type             string         `gorm:"not null" json:"type"`
	Order            int            `gorm:"column:exercise_order;not null;default:0" json:"order"`
	EstimatedMinutes int            `json:"estimatedMinutes"`
	Content          datatypes.JSON `json:"content"`
}

type Assessment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PhaseID       uint           `gorm:"not null;index" json:"phaseId"`
	Title         string         `gorm:"not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	Questions     datatypes.JSON `json:"questions"`
	ScoringRubric datatypes.JSON `json:"scoringRubric,omitempty"`
}

type UserProgress struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;uniqueIndex:idx_user_phase" json:"userId"`
	PhaseID            uint       `gorm:"not null;uniqueIndex:idx_user_phase" json:"phaseId"`
	Status             string     `gorm:"not null;default:'locked'" json:"status"`
	ExercisesCompleted int        `gorm:"not null;default:0" json:"exercisesCompleted"`
	TotalExercises     int        `gorm:"not null;default:0" json:"totalExercises"`
	CompletedAt        *time.Time `json:"completedAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type UserExerciseProgress struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_user_exercise" json:"userId"`
	ExerciseID  uint           `gorm:"not null;uniqueIndex:idx_user_exercise;index" json:"exerciseId"`
	IsCompleted bool           `gorm:"not null;default:false" json:"isCompleted"`
	Responses   datatypes.JSON `json:"responses"`
	CompletedAt *time.Time     `json:"completedAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type UserAssessmentResult struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index" json:"userId"`
	AssessmentID   uint           `gorm:"not null;index" json:"assessmentId"`
	Answers        datatypes.JSON `json:"answers"`
	Score          *int           `json:"score"`
	Interpretation string         `gorm:"type:text" json:"interpretation"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type JournalEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Title       string    `json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Mood        string    `json:"mood"`
	EnergyLevel *int      `json:"energyLevel"`
	PhaseID     *uint     `gorm:"index" json:"phaseId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	LeadActive       = "active"
	LeadUnsubscribed = "unsubscribed"
)

type Lead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	FirstName string    `json:"firstName"`
	Source    string    `json:"source"`
	Status    string    `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type BlogPost struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug"`
	Excerpt     string     `gorm:"type:text" json:"excerpt"`
	Content     string     `gorm:"type:text" json:"content"` // markdown
	Author      string     `json:"author"`
	Category    string     `gorm:"index" json:"category"`
	ImageURL    string     `json:"imageUrl"`
	Published   bool       `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time `json:"publishedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
