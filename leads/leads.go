package leads

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reclaim/account"
	"reclaim/common"
	"reclaim/email"
	"reclaim/metrics"
	"reclaim/models"
	"reclaim/ratelimit"
)

type LeadsModule struct {
	db      *gorm.DB
	mailer  email.Mailer
	limiter ratelimit.Limiter
}

func NewLeadsModule(db *gorm.DB, mailer email.Mailer, limiter ratelimit.Limiter) *LeadsModule {
	return &LeadsModule{db: db, mailer: mailer, limiter: limiter}
}

func (m *LeadsModule) RegisterRoutes(api *gin.RouterGroup) {
	if m.limiter != nil {
		api.POST("/leads", ratelimit.Middleware(m.limiter, "leads"), m.capture)
		return
	}
	api.POST("/leads", m.capture)
}

func (m *LeadsModule) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/leads", m.list)
	admin.PATCH("/leads/:id", m.updateStatus)
}

type captureRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"max=100"`
	Source    string `json:"source" binding:"max=100"`
}

// capture stores the lead and sends the welcome email. Mail failures never
// fail the request; the lead is already saved.
func (m *LeadsModule) capture(c *gin.Context) {
	var req captureRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	lead := models.Lead{
		Email:     account.NormalizeEmail(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		Source:    strings.TrimSpace(req.Source),
		Status:    models.LeadActive,
	}
	err := m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns(resubmitColumns(lead)),
	}).Create(&lead).Error
	if err != nil {
		common.Fail(c, common.Internal("Failed to save lead", err))
		return
	}

	if err := m.db.Where("email = ?", lead.Email).First(&lead).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load lead", err))
		return
	}
	metrics.LeadsCaptured.Inc()

	m.sendWelcome(c.Request.Context(), lead)

	c.JSON(http.StatusCreated, lead)
}

// resubmitColumns lists what a repeat capture overwrites. Blank optional
// fields keep the values from the earlier submission.
func resubmitColumns(lead models.Lead) []string {
	cols := []string{"status", "updated_at"}
	if lead.FirstName != "" {
		cols = append(cols, "first_name")
	}
	if lead.Source != "" {
		cols = append(cols, "source")
	}
	return cols
}

func (m *LeadsModule) sendWelcome(ctx context.Context, lead models.Lead) {
	if m.mailer == nil {
		return
	}
	if err := m.mailer.SendLeadWelcome(ctx, lead.Email, lead.FirstName); err != nil {
		log.Warn().Err(err).Uint("lead_id", lead.ID).Msg("lead welcome email failed")
	}
}

func (m *LeadsModule) list(c *gin.Context) {
	query := m.db.Model(&models.Lead{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	leads := []models.Lead{}
	if err := query.Order("created_at DESC, id DESC").Find(&leads).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load leads", err))
		return
	}
	c.JSON(http.StatusOK, leads)
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=active unsubscribed"`
}

func (m *LeadsModule) updateStatus(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req statusRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	var lead models.Lead
	if err := m.db.First(&lead, id).Error; err != nil {
		common.Fail(c, common.NotFoundOr(err, "Lead"))
		return
	}

	lead.Status = req.Status
	if err := m.db.Save(&lead).Error; err != nil {
		common.Fail(c, common.Internal("Failed to update lead", err))
		return
	}
	c.JSON(http.StatusOK, lead)
}
