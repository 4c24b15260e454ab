package backoffice

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

	"reclaim/account"
	"reclaim/common"
	"reclaim/config"
	"reclaim/models"
	"reclaim/settings"
)

type fixture struct {
	db      *gorm.DB
	router  *gin.Engine
	adminID uint
	userID  uint
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Setting{}, &models.UserProgress{}, &models.JournalEntry{}, &models.Phase{}))
	for i, letter := range "HEALING" {
		require.NoError(t, db.Create(&models.Phase{Letter: string(letter), Name: fmt.Sprintf("Phase %d", i+1), Order: i + 1}).Error)
	}

	admin := models.User{Email: "admin@example.com", PasswordHash: "x", IsAdmin: true,
		SubscriptionTier: models.TierFree, SubscriptionStatus: models.SubscriptionInactive, CurrentPhase: 1}
	require.NoError(t, db.Create(&admin).Error)
	user := models.User{Email: "ada@example.com", PasswordHash: "x",
		SubscriptionTier: models.TierFree, SubscriptionStatus: models.SubscriptionInactive, CurrentPhase: 1}
	require.NoError(t, db.Create(&user).Error)

	cfg := &config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_env1234", DefaultPriceCents: 9700, Currency: "usd"}}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	f := &fixture{db: db, router: router, adminID: admin.ID, userID: user.ID}
	api := router.Group("/api")
	api.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-User") == "member" {
			c.Set(common.SessionUserKey, user.ID)
		} else {
			c.Set(common.SessionUserKey, admin.ID)
		}
		c.Next()
	})
	NewBackofficeModule(db, settings.NewStore(db, cfg)).RegisterAdminRoutes(api.Group("/admin", account.RequireAdmin(db)))
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListSettings_MasksSecrets(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/api/admin/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var views []settings.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, len(settings.Keys))

	byKey := map[string]settings.View{}
	for _, v := range views {
		byKey[v.Key] = v
	}
	assert.Equal(t, "****1234", byKey[settings.KeyStripeSecretKey].Value)
	assert.Equal(t, settings.SourceEnvironment, byKey[settings.KeyStripeSecretKey].Source)
	assert.Equal(t, "9700", byKey[settings.KeyPriceCents].Value)
}

func TestUpdateSetting(t *testing.T) {
	f := setup(t)

	w := f.do("PUT", "/api/admin/settings/payment_price_cents", `{"value":"4900"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view settings.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "4900", view.Value)
	assert.Equal(t, settings.SourceDatabase, view.Source)
}

func TestUpdateSetting_Rejections(t *testing.T) {
	f := setup(t)

	tests := map[string]struct {
		path string
		body string
	}{
		"unknown key":    {"/api/admin/settings/favorite_color", `{"value":"blue"}`},
		"negative price": {"/api/admin/settings/payment_price_cents", `{"value":"-5"}`},
		"text price":     {"/api/admin/settings/payment_price_cents", `{"value":"cheap"}`},
		"missing value":  {"/api/admin/settings/payment_price_cents", `{}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := f.do("PUT", tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	var count int64
	f.db.Model(&models.Setting{}).Count(&count)
	assert.Zero(t, count)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusForbidden, f.do("GET", "/api/admin/settings", "", "X-Test-User", "member").Code)
	assert.Equal(t, http.StatusForbidden, f.do("GET", "/api/admin/users", "", "X-Test-User", "member").Code)
}

func TestListUsers_WithStats(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Create(&models.UserProgress{UserID: f.userID, PhaseID: 1, Status: "completed"}).Error)
	require.NoError(t, f.db.Create(&models.UserProgress{UserID: f.userID, PhaseID: 2, Status: "in_progress"}).Error)
	require.NoError(t, f.db.Create(&models.JournalEntry{UserID: f.userID, Content: "first"}).Error)
	require.NoError(t, f.db.Create(&models.JournalEntry{UserID: f.userID, Content: "second"}).Error)

	w := f.do("GET", "/api/admin/users", "")
	require.Equal(t, http.StatusOK, w.Code)

	var users []UserWithStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 2)

	byEmail := map[string]UserWithStats{}
	for _, u := range users {
		byEmail[u.Email] = u
	}
	assert.Equal(t, int64(1), byEmail["ada@example.com"].PhasesCompleted)
	assert.Equal(t, int64(2), byEmail["ada@example.com"].JournalEntries)
	assert.Zero(t, byEmail["admin@example.com"].JournalEntries)
	assert.NotContains(t, w.Body.String(), "passwordHash")
}

func TestUpdateUser(t *testing.T) {
	f := setup(t)

	w := f.do("PATCH", "/api/admin/users/2", `{"subscriptionTier":"lifetime","subscriptionStatus":"active","currentPhase":4}`)
	require.Equal(t, http.StatusOK, w.Code)

	var user models.User
	require.NoError(t, f.db.First(&user, f.userID).Error)
	assert.True(t, user.HasLifetimeAccess())
	assert.Equal(t, 4, user.CurrentPhase)
	assert.False(t, user.IsAdmin)
}

func TestUpdateUser_PhaseFollowsCurriculum(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Create(&models.Phase{Letter: "X", Name: "Extra", Order: 8}).Error)

	w := f.do("PATCH", "/api/admin/users/2", `{"currentPhase":8}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, f.db.Where("phase_order = ?", 3).Delete(&models.Phase{}).Error)
	w = f.do("PATCH", "/api/admin/users/2", `{"currentPhase":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "currentPhase")

	var user models.User
	require.NoError(t, f.db.First(&user, f.userID).Error)
	assert.Equal(t, 8, user.CurrentPhase)
}

func TestUpdateUser_Rejections(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusBadRequest, f.do("PATCH", "/api/admin/users/2", `{"subscriptionTier":"gold"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("PATCH", "/api/admin/users/2", `{"currentPhase":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("PATCH", "/api/admin/users/2", `{"currentPhase":0}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do("PATCH", "/api/admin/users/99", `{"isAdmin":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("PATCH", "/api/admin/users/1", `{"isAdmin":false}`).Code)

	var admin models.User
	require.NoError(t, f.db.First(&admin, f.adminID).Error)
	assert.True(t, admin.IsAdmin)
}
