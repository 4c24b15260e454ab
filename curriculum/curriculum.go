package curriculum

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"reclaim/common"
	"reclaim/metrics"
	"reclaim/models"
)

type CurriculumModule struct {
	db *gorm.DB
}

func NewCurriculumModule(db *gorm.DB) *CurriculumModule {
	return &CurriculumModule{db: db}
}

func (m *CurriculumModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/phases", m.listPhases)
	api.GET("/phases/:id", m.getPhase)
	api.GET("/phases/:id/exercises", m.listPhaseExercises)
	api.GET("/phases/:id/assessments", m.listPhaseAssessments)
	api.GET("/exercises/:id", m.getExercise)
	api.GET("/assessments/:id", m.getAssessment)

	api.POST("/assessments/:id/results", m.submitAssessment)
	api.GET("/assessment-results", m.listResults)
}

type PhaseDetail struct {
	models.Phase
	Exercises   []models.Exercise   `json:"exercises"`
	Assessments []models.Assessment `json:"assessments"`
}

func (m *CurriculumModule) listPhases(c *gin.Context) {
	phases := []models.Phase{}
	if err := m.db.Order("phase_order ASC").Find(&phases).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load phases", err))
		return
	}
	c.JSON(http.StatusOK, phases)
}

func (m *CurriculumModule) getPhase(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var phase models.Phase
	if err := m.db.First(&phase, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Phase"))
		return
	}

	detail := PhaseDetail{Phase: phase, Exercises: []models.Exercise{}, Assessments: []models.Assessment{}}
	if err := m.db.Where("phase_id = ?", id).Order("exercise_order ASC").Find(&detail.Exercises).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load exercises", err))
		return
	}
	if err := m.db.Where("phase_id = ?", id).Order("id ASC").Find(&detail.Assessments).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load assessments", err))
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (m *CurriculumModule) listPhaseExercises(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	exercises := []models.Exercise{}
	if err := m.db.Where("phase_id = ?", id).Order("exercise_order ASC").Find(&exercises).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load exercises", err))
		return
	}
	c.JSON(http.StatusOK, exercises)
}

func (m *CurriculumModule) listPhaseAssessments(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	assessments := []models.Assessment{}
	if err := m.db.Where("phase_id = ?", id).Order("id ASC").Find(&assessments).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load assessments", err))
		return
	}
	c.JSON(http.StatusOK, assessments)
}

func (m *CurriculumModule) getExercise(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var exercise models.Exercise
	if err := m.db.First(&exercise, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Exercise"))
		return
	}
	c.JSON(http.StatusOK, exercise)
}

func (m *CurriculumModule) getAssessment(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var assessment models.Assessment
	if err := m.db.First(&assessment, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Assessment"))
		return
	}
	c.JSON(http.StatusOK, assessment)
}

type submitAssessmentRequest struct {
	Answers json.RawMessage `json:"answers" binding:"required"`
}

func (m *CurriculumModule) submitAssessment(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req submitAssessmentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	var assessment models.Assessment
	if err := m.db.First(&assessment, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Assessment"))
		return
	}

	score, err := ScoreAssessment(&assessment, req.Answers)
	if err != nil {
		common.Fail(c, err)
		return
	}

	result := models.UserAssessmentResult{
		UserID:         common.CurrentUserID(c),
		AssessmentID:   assessment.ID,
		Answers:        datatypes.JSON(req.Answers),
		Score:          score.Score,
		Interpretation: score.Interpretation,
	}
	if err := m.db.Create(&result).Error; err != nil {
		common.Fail(c, common.Internal("Failed to save assessment result", err))
		return
	}

	metrics.AssessmentSubmissions.Inc()
	c.JSON(http.StatusCreated, result)
}

func (m *CurriculumModule) listResults(c *gin.Context) {
	assessmentID, err := common.QueryID(c, "assessmentId")
	if err != nil {
		common.Fail(c, err)
		return
	}

	query := m.db.Where("user_id = ?", common.CurrentUserID(c))
	if assessmentID != nil {
		query = query.Where("assessment_id = ?", *assessmentID)
	}

	results := []models.UserAssessmentResult{}
	if err := query.Order("created_at DESC, id DESC").Find(&results).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load assessment results", err))
		return
	}
	c.JSON(http.StatusOK, results)
}
