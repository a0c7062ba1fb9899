package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination is the metadata attached to every paginated list.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes total pages for the given page window.
func NewPagination(page, pageSize int, total int64) Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Created returns a standard success response with 201.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Paginated returns items together with pagination metadata.
func Paginated(ctx *gin.Context, items interface{}, p Pagination) {
	Success(ctx, gin.H{"items": items, "pagination": p})
}

// ServeCached writes a cached success envelope if one exists under key.
func ServeCached(ctx *gin.Context, key string) bool {
	b, ok := CacheGetBytes(key)
	if !ok {
		return false
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
	return true
}

// SuccessCached answers with data and stores the whole envelope under key.
func SuccessCached(ctx *gin.Context, key string, data interface{}, ttl time.Duration) {
	env := JSONResponse{Code: 0, Message: "success", Data: data}
	if b, err := json.Marshal(env); err == nil {
		CacheSetBytes(key, b, ttl)
	}
	Success(ctx, data)
}
