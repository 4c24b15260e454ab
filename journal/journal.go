package journal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reclaim/common"
	"reclaim/models"
)

type JournalModule struct {
	db *gorm.DB
}

func NewJournalModule(db *gorm.DB) *JournalModule {
	return &JournalModule{db: db}
}

func (m *JournalModule) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/journal", m.list)
	api.POST("/journal", m.create)
	api.GET("/journal/:id", m.get)
	api.PUT("/journal/:id", m.update)
	api.DELETE("/journal/:id", m.delete)
}

type entryRequest struct {
	Title       string `json:"title" binding:"max=200"`
	Content     string `json:"content" binding:"required"`
	Mood        string `json:"mood" binding:"max=50"`
	EnergyLevel *int   `json:"energyLevel" binding:"omitempty,gte=1,lte=10"`
	PhaseID     *uint  `json:"phaseId"`
}

func (m *JournalModule) list(c *gin.Context) {
	phaseID, err := common.QueryID(c, "phaseId")
	if err != nil {
		common.Fail(c, err)
		return
	}

	query := m.db.Where("user_id = ?", common.CurrentUserID(c))
	if phaseID != nil {
		query = query.Where("phase_id = ?", *phaseID)
	}

	entries := []models.JournalEntry{}
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		common.Fail(c, common.Internal("Failed to load journal entries", err))
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (m *JournalModule) create(c *gin.Context) {
	var req entryRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	if err := m.checkPhase(req.PhaseID); err != nil {
		common.Fail(c, err)
		return
	}

	entry := models.JournalEntry{
		UserID:      common.CurrentUserID(c),
		Title:       req.Title,
		Content:     req.Content,
		Mood:        req.Mood,
		EnergyLevel: req.EnergyLevel,
		PhaseID:     req.PhaseID,
	}
	if err := m.db.Create(&entry).Error; err != nil {
		common.Fail(c, common.Internal("Failed to save journal entry", err))
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (m *JournalModule) get(c *gin.Context) {
	entry, err := m.load(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (m *JournalModule) update(c *gin.Context) {
	entry, err := m.load(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req entryRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	if err := m.checkPhase(req.PhaseID); err != nil {
		common.Fail(c, err)
		return
	}

	entry.Title = req.Title
	entry.Content = req.Content
	entry.Mood = req.Mood
	entry.EnergyLevel = req.EnergyLevel
	entry.PhaseID = req.PhaseID
	if err := m.db.Save(entry).Error; err != nil {
		common.Fail(c, common.Internal("Failed to update journal entry", err))
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (m *JournalModule) delete(c *gin.Context) {
	entry, err := m.load(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	if err := m.db.Delete(entry).Error; err != nil {
		common.Fail(c, common.Internal("Failed to delete journal entry", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// load finds the entry by id within the session user's entries, so other
// users' ids look missing.
func (m *JournalModule) load(c *gin.Context) (*models.JournalEntry, error) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		return nil, err
	}

	var entry models.JournalEntry
	if err := m.db.Where("id = ? AND user_id = ?", id, common.CurrentUserID(c)).First(&entry).Error; err != nil {
		return nil, common.NotFoundOr(err, "Journal entry")
	}
	return &entry, nil
}

func (m *JournalModule) checkPhase(phaseID *uint) error {
	if phaseID == nil {
		return nil
	}
	var phase models.Phase
	if err := m.db.Select("id").First(&phase, *phaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.Validation("phaseId does not reference a phase", nil)
		}
		return common.Internal("Failed to load phase", err)
	}
	return nil
}
