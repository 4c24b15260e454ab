package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reclaim/common"
	"reclaim/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Phase{}, &models.JournalEntry{}))
	require.NoError(t, db.Create(&models.Phase{Letter: "H", Name: "Honor Your Story", Order: 1}).Error)
	return db
}

func setupTestRouter(db *gorm.DB, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set(common.SessionUserKey, userID)
		c.Next()
	})
	NewJournalModule(db).RegisterRoutes(api)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createEntry(t *testing.T, router *gin.Engine, body string) models.JournalEntry {
	w := doRequest(router, "POST", "/api/journal", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry models.JournalEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	return entry
}

func TestCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, 7)

	entry := createEntry(t, router, `{"title":"Monday","content":"Slept well.","mood":"calm","energyLevel":6,"phaseId":1}`)
	assert.Equal(t, uint(7), entry.UserID)
	require.NotNil(t, entry.EnergyLevel)
	assert.Equal(t, 6, *entry.EnergyLevel)

	createEntry(t, router, `{"content":"No phase on this one."}`)

	w := doRequest(router, "GET", "/api/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.JournalEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	w = doRequest(router, "GET", "/api/journal?phaseId=1", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Monday", entries[0].Title)
}

func TestCreate_Validation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, 7)

	w := doRequest(router, "POST", "/api/journal", `{"title":"empty"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "content is required")

	w = doRequest(router, "POST", "/api/journal", `{"content":"x","energyLevel":11}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, "POST", "/api/journal", `{"content":"x","phaseId":99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, 7)
	entry := createEntry(t, router, `{"content":"draft"}`)
	path := fmt.Sprintf("/api/journal/%d", entry.ID)

	w := doRequest(router, "PUT", path, `{"content":"revised","mood":"hopeful"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "GET", path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "revised")

	w = doRequest(router, "DELETE", path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, "GET", path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntriesAreScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	owner := setupTestRouter(db, 7)
	other := setupTestRouter(db, 8)
	entry := createEntry(t, owner, `{"content":"private"}`)
	path := fmt.Sprintf("/api/journal/%d", entry.ID)

	assert.Equal(t, http.StatusNotFound, doRequest(other, "GET", path, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(other, "PUT", path, `{"content":"hijack"}`).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(other, "DELETE", path, "").Code)

	w := doRequest(other, "GET", "/api/journal", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	var stored models.JournalEntry
	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, "private", stored.Content)
}
