package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reclaim/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.BlogPost{}, &PostView{}))
	return db
}

func newTestModule(db *gorm.DB, now *time.Time) *AnalyticsModule {
	a := NewAnalyticsModule(db)
	a.now = func() time.Time { return *now }
	return a
}

func trackRequest(a *AnalyticsModule, postID uint, cookie *http.Cookie) (*httptest.ResponseRecorder, bool) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/blog/post", nil)
	c.Request.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0")
	c.Request.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	if cookie != nil {
		c.Request.AddCookie(cookie)
	}
	return w, a.TrackView(c, postID)
}

func TestTrackView_Throttled(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestModule(db, &now)

	w, counted := trackRequest(a, 1, nil)
	require.True(t, counted)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	visitor := cookies[0]

	_, counted = trackRequest(a, 1, visitor)
	assert.False(t, counted)

	// a different post counts
	_, counted = trackRequest(a, 2, visitor)
	assert.True(t, counted)

	now = now.Add(31 * time.Minute)
	_, counted = trackRequest(a, 1, visitor)
	assert.True(t, counted)

	count, err := a.ViewCount(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var view PostView
	require.NoError(t, db.First(&view).Error)
	assert.Equal(t, "Firefox", *view.Browser)
	assert.Equal(t, "en-GB", *view.Language)
}

func TestTrackView_NewVisitorsCountSeparately(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	a := newTestModule(db, &now)

	trackRequest(a, 1, nil)
	trackRequest(a, 1, nil)
	trackRequest(a, 1, &http.Cookie{Name: visitorCookie, Value: "not-a-uuid"})

	count, err := a.ViewCount(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestViewCount_DatabaseError(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	a := newTestModule(db, &now)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	count, err := a.ViewCount(1)
	assert.Error(t, err)
	assert.Zero(t, count)
}

func TestExtractBrowser(t *testing.T) {
	tests := map[string]string{
		"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0": "Edge",
		"Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15":            "Safari",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36":          "Chrome",
		"curl/8.0": "Other",
	}
	for ua, want := range tests {
		assert.Equal(t, want, *extractBrowser(ua), ua)
	}
	assert.Nil(t, extractBrowser(""))
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a := newTestModule(db, &now)

	first := models.BlogPost{Title: "Grounding basics", Slug: "grounding-basics", Published: true}
	second := models.BlogPost{Title: "Boundaries at work", Slug: "boundaries-at-work", Published: true}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	views := []PostView{
		{PostID: first.ID, VisitorID: "a", CreatedAt: now.Add(-1 * time.Hour)},
		{PostID: first.ID, VisitorID: "b", CreatedAt: now.Add(-2 * time.Hour)},
		{PostID: second.ID, VisitorID: "a", CreatedAt: now.AddDate(0, 0, -1)},
		{PostID: second.ID, VisitorID: "c", CreatedAt: now.AddDate(0, 0, -40)},
	}
	require.NoError(t, db.Create(&views).Error)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	a.RegisterAdminRoutes(router.Group("/api/admin"))

	req, _ := http.NewRequest("GET", "/api/admin/blog/stats?days=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.ByDay, 7)
	assert.Equal(t, "2025-03-10", resp.ByDay[6].Date)
	assert.Equal(t, int64(2), resp.ByDay[6].Count)
	assert.Equal(t, int64(1), resp.ByDay[5].Count)

	require.Len(t, resp.TopPosts, 2)
	assert.Equal(t, "Grounding basics", resp.TopPosts[0].PostTitle)
	assert.Equal(t, int64(2), resp.TopPosts[0].Count)

	req, _ = http.NewRequest("GET", "/api/admin/blog/stats?days=0", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
