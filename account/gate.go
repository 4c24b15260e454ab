package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reclaim/common"
	"reclaim/models"
)

const userContextKey = "user"

// Gate requires a session on every route except the listed ones. Entries are
// "METHOD /route/template", matched against gin's FullPath so parameters
// never widen the list.
func Gate(public ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(public))
	for _, route := range public {
		allowed[route] = true
	}

	return func(c *gin.Context) {
		userID := common.SessionUserID(c)
		if userID != 0 {
			c.Set(common.SessionUserKey, userID)
		}

		if allowed[c.Request.Method+" "+c.FullPath()] {
			c.Next()
			return
		}

		if userID == 0 {
			common.Fail(c, common.Unauthorized("Authentication required"))
			return
		}
		c.Next()
	}
}

// Unmatched answers requests that hit no route. Under prefix a missing
// session is reported before the 404, so anonymous callers get the same
// 401 for unknown paths as for protected ones.
func Unmatched(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, prefix) && common.SessionUserID(c) == 0 {
			common.Fail(c, common.Unauthorized("Authentication required"))
			return
		}
		common.Fail(c, common.NewAppError(common.ErrCodeNotFound, "Route not found", http.StatusNotFound))
	}
}

// RequireAdmin must run after Gate.
func RequireAdmin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		if err := db.First(&user, common.CurrentUserID(c)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				common.Fail(c, common.Unauthorized("Authentication required"))
				return
			}
			common.Fail(c, common.Internal("Failed to load user", err))
			return
		}
		if !user.IsAdmin {
			common.Fail(c, common.Forbidden("Admin access required"))
			return
		}
		c.Set(userContextKey, &user)
		c.Next()
	}
}

// AdminUser returns the user loaded by RequireAdmin.
func AdminUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
