package progress

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reclaim/common"
	"reclaim/models"
)

// ProgressModule serves the progress endpoints on top of Service.
type ProgressModule struct {
	db      *gorm.DB
	service *Service
}

func NewProgressModule(db *gorm.DB) *ProgressModule {
	return &ProgressModule{db: db, service: NewService(db)}
}

// Service exposes the shared service for modules that record progress.
func (m *ProgressModule) Service() *Service {
	return m.service
}

func (m *ProgressModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/progress", m.listProgress)
	api.GET("/exercise-progress", m.listExerciseProgress)
	api.POST("/exercise-progress", m.saveExerciseProgress)
	api.POST("/exercises/:id/complete", m.completeExercise)
}

// RegisterAdminRoutes expects a group already guarded by RequireAdmin.
func (m *ProgressModule) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.POST("/users/:id/progress/recompute", m.recompute)
}

func (m *ProgressModule) listProgress(c *gin.Context) {
	views, err := m.service.ListProgress(c.Request.Context(), common.CurrentUserID(c))
	if err != nil {
		common.Fail(c, common.Internal("Failed to load progress", err))
		return
	}
	c.JSON(http.StatusOK, views)
}

func (m *ProgressModule) listExerciseProgress(c *gin.Context) {
	phaseID, err := common.QueryID(c, "phaseId")
	if err != nil {
		common.Fail(c, err)
		return
	}

	rows, err := m.service.ListExerciseProgress(c.Request.Context(), common.CurrentUserID(c), phaseID)
	if err != nil {
		common.Fail(c, common.Internal("Failed to load exercise progress", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type saveExerciseRequest struct {
	ExerciseID  uint            `json:"exerciseId" binding:"required"`
	Responses   json.RawMessage `json:"responses"`
	IsCompleted bool            `json:"isCompleted"`
}

func (m *ProgressModule) saveExerciseProgress(c *gin.Context) {
	var req saveExerciseRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := m.service.SaveExerciseProgress(c.Request.Context(), common.CurrentUserID(c), req.ExerciseID, req.Responses, req.IsCompleted)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type completeExerciseRequest struct {
	Responses json.RawMessage `json:"responses"`
}

func (m *ProgressModule) completeExercise(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req completeExerciseRequest
	if err := common.BindOptionalJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := m.service.RecordExerciseCompletion(c.Request.Context(), common.CurrentUserID(c), id, req.Responses)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (m *ProgressModule) recompute(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var user models.User
	if err := m.db.First(&user, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "User"))
		return
	}

	rows, err := m.service.ReconcileUser(c.Request.Context(), user.ID)
	if err != nil {
		common.Fail(c, common.Internal("Failed to recompute progress", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}
