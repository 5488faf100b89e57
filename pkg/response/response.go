// Package response defines the standard JSON envelope for API responses.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Code is a stable machine-readable
// error identifier (e.g. STATUS_NOT_FOUND); Error is human-readable.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// BadRequestCode sends 400 with error message and code.
func BadRequestCode(c *gin.Context, err, code string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Code: code})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// UnauthorizedCode sends 401 with error message and code.
func UnauthorizedCode(c *gin.Context, err, code string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err, Code: code})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFoundCode sends 404 with error message and code.
func NotFoundCode(c *gin.Context, err, code string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Code: code})
}

// BadGateway sends 502, for upstream provider failures.
func BadGateway(c *gin.Context, err string) {
	c.JSON(http.StatusBadGateway, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}
