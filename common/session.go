package common

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const SessionUserKey = "user_id"

// SessionUserID returns the user id stored in the session cookie, or 0.
func SessionUserID(c *gin.Context) uint {
	session := sessions.Default(c)
	switch v := session.Get(SessionUserKey).(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	default:
		return 0
	}
}

// CurrentUserID returns the user id placed on the context by the API gate.
func CurrentUserID(c *gin.Context) uint {
	if v, ok := c.Get(SessionUserKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

func SetSessionUser(c *gin.Context, userID uint) error {
	session := sessions.Default(c)
	session.Set(SessionUserKey, userID)
	return session.Save()
}

func ClearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}
