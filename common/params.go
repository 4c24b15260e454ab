package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParamID parses a positive numeric path parameter.
func ParamID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, BadRequest("Invalid " + name)
	}
	return uint(id), nil
}

// QueryID parses an optional numeric query parameter; absent yields nil.
func QueryID(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, BadRequest("Invalid " + name)
	}
	v := uint(id)
	return &v, nil
}
