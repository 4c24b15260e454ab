package backoffice

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"reclaim/account"
	"reclaim/common"
	"reclaim/models"
	"reclaim/progress"
	"reclaim/settings"
)

type BackofficeModule struct {
	db       *gorm.DB
	settings *settings.Store
}

func NewBackofficeModule(db *gorm.DB, store *settings.Store) *BackofficeModule {
	return &BackofficeModule{db: db, settings: store}
}

// RegisterAdminRoutes expects a group already guarded by RequireAdmin.
func (b *BackofficeModule) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/settings", b.listSettings)
	admin.PUT("/settings/:key", b.updateSetting)
	admin.GET("/users", b.listUsers)
	admin.PATCH("/users/:id", b.updateUser)
}

func (b *BackofficeModule) listSettings(c *gin.Context) {
	views, err := b.settings.List(c.Request.Context())
	if err != nil {
		common.Fail(c, common.Internal("Failed to load settings", err))
		return
	}
	c.JSON(http.StatusOK, views)
}

type settingRequest struct {
	Value *string `json:"value" binding:"required"`
}

func (b *BackofficeModule) updateSetting(c *gin.Context) {
	key := c.Param("key")
	if !settings.IsKnown(key) {
		common.Fail(c, common.BadRequest("Unknown setting "+key))
		return
	}

	var req settingRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := b.settings.Set(ctx, key, *req.Value); err != nil {
		common.Fail(c, err)
		return
	}
	log.Info().Str("key", key).Uint("admin_id", common.CurrentUserID(c)).Msg("setting updated")

	views, err := b.settings.List(ctx)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load settings", err))
		return
	}
	for _, view := range views {
		if view.Key == key {
			c.JSON(http.StatusOK, view)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// UserWithStats is a user row plus activity counts for the admin list.
type UserWithStats struct {
	models.User
	PhasesCompleted int64 `json:"phasesCompleted"`
	JournalEntries  int64 `json:"journalEntries"`
}

type userCount struct {
	UserID uint
	Total  int64
}

func (b *BackofficeModule) listUsers(c *gin.Context) {
	users := []models.User{}
	if err := b.db.Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load users", err))
		return
	}

	var phases []userCount
	err := b.db.Model(&models.UserProgress{}).
		Select("user_id, COUNT(*) AS total").
		Where("status = ?", progress.StatusCompleted).
		Group("user_id").
		Scan(&phases).Error
	if err != nil {
		common.Fail(c, common.Internal("Failed to load user stats", err))
		return
	}

	var journals []userCount
	err = b.db.Model(&models.JournalEntry{}).
		Select("user_id, COUNT(*) AS total").
		Group("user_id").
		Scan(&journals).Error
	if err != nil {
		common.Fail(c, common.Internal("Failed to load user stats", err))
		return
	}

	phaseCounts := toMap(phases)
	journalCounts := toMap(journals)

	out := make([]UserWithStats, len(users))
	for i, user := range users {
		out[i] = UserWithStats{
			User:            user,
			PhasesCompleted: phaseCounts[user.ID],
			JournalEntries:  journalCounts[user.ID],
		}
	}
	c.JSON(http.StatusOK, out)
}

func toMap(counts []userCount) map[uint]int64 {
	m := make(map[uint]int64, len(counts))
	for _, row := range counts {
		m[row.UserID] = row.Total
	}
	return m
}

type updateUserRequest struct {
	IsAdmin            *bool   `json:"isAdmin"`
	SubscriptionTier   *string `json:"subscriptionTier" binding:"omitempty,oneof=free lifetime"`
	SubscriptionStatus *string `json:"subscriptionStatus" binding:"omitempty,oneof=inactive active"`
	CurrentPhase       *int    `json:"currentPhase" binding:"omitempty,gte=1"`
}

// checkPhase accepts only phase orders present in the curriculum.
func (b *BackofficeModule) checkPhase(order int) error {
	var count int64
	if err := b.db.Model(&models.Phase{}).Where("phase_order = ?", order).Count(&count).Error; err != nil {
		return common.Internal("Failed to load phases", err)
	}
	if count == 0 {
		msg := "currentPhase does not reference a phase"
		return common.Validation(msg, []common.FieldError{{Field: "currentPhase", Message: msg}})
	}
	return nil
}

func (b *BackofficeModule) updateUser(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req updateUserRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if admin := account.AdminUser(c); admin != nil && admin.ID == id && req.IsAdmin != nil && !*req.IsAdmin {
		common.Fail(c, common.BadRequest("You cannot remove your own admin access"))
		return
	}
	if req.CurrentPhase != nil {
		if err := b.checkPhase(*req.CurrentPhase); err != nil {
			common.Fail(c, err)
			return
		}
	}

	var user models.User
	if err := b.db.First(&user, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "User"))
		return
	}

	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.SubscriptionTier != nil {
		user.SubscriptionTier = *req.SubscriptionTier
	}
	if req.SubscriptionStatus != nil {
		user.SubscriptionStatus = *req.SubscriptionStatus
	}
	if req.CurrentPhase != nil {
		user.CurrentPhase = *req.CurrentPhase
	}

	if err := b.db.Save(&user).Error; err != nil {
		common.Fail(c, common.Internal("Failed to update user", err))
		return
	}
	log.Info().Uint("user_id", user.ID).Uint("admin_id", common.CurrentUserID(c)).Msg("user updated by admin")
	c.JSON(http.StatusOK, user)
}
