package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"reclaim/common"
	"reclaim/models"
	"reclaim/ratelimit"
)

var passwordCost = 12

type AccountModule struct {
	db      *gorm.DB
	limiter ratelimit.Limiter
}

// NewAccountModule wires the auth endpoints; limiter may be nil.
func NewAccountModule(db *gorm.DB, limiter ratelimit.Limiter) *AccountModule {
	return &AccountModule{db: db, limiter: limiter}
}

func (m *AccountModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/register", m.limit("register"), m.register)
	api.POST("/login", m.limit("login"), m.login)
	api.POST("/logout", m.logout)
	api.GET("/auth/user", m.currentUser)
}

func (m *AccountModule) limit(scope string) gin.HandlerFunc {
	if m.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return ratelimit.Middleware(m.limiter, scope)
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

func (m *AccountModule) register(c *gin.Context) {
	var req registerRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	email := NormalizeEmail(req.Email)

	var existing int64
	if err := m.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		common.Fail(c, common.Internal("Failed to check email", err))
		return
	}
	if existing > 0 {
		common.Fail(c, common.Conflict("Email already registered"))
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		common.Fail(c, common.Internal("Failed to hash password", err))
		return
	}

	user := models.User{
		Email:              email,
		PasswordHash:       passwordHash,
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		CurrentPhase:       1,
		SubscriptionTier:   models.TierFree,
		SubscriptionStatus: models.SubscriptionInactive,
	}
	if err := m.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			common.Fail(c, common.Conflict("Email already registered"))
			return
		}
		common.Fail(c, common.Internal("Failed to create user", err))
		return
	}

	if err := common.SetSessionUser(c, user.ID); err != nil {
		common.Fail(c, common.Internal("Failed to start session", err))
		return
	}

	log.Info().Uint("user_id", user.ID).Msg("user registered")
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (m *AccountModule) login(c *gin.Context) {
	var req loginRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	var user models.User
	if err := m.db.Where("email = ?", NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, common.Internal("Failed to load user", err))
			return
		}
		common.Fail(c, common.Unauthorized("Invalid email or password"))
		return
	}

	if !checkPasswordHash(req.Password, user.PasswordHash) {
		common.Fail(c, common.Unauthorized("Invalid email or password"))
		return
	}

	if err := common.SetSessionUser(c, user.ID); err != nil {
		common.Fail(c, common.Internal("Failed to start session", err))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (m *AccountModule) logout(c *gin.Context) {
	if err := common.ClearSession(c); err != nil {
		common.Fail(c, common.Internal("Failed to end session", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (m *AccountModule) currentUser(c *gin.Context) {
	var user models.User
	if err := m.db.First(&user, common.CurrentUserID(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, common.Unauthorized("Authentication required"))
			return
		}
		common.Fail(c, common.Internal("Failed to load user", err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// Promote grants admin rights to the user with the given email.
func Promote(db *gorm.DB, email string) error {
	result := db.Model(&models.User{}).Where("email = ?", NormalizeEmail(email)).Update("is_admin", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
