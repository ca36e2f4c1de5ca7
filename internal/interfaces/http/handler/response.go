package handler

import "github.com/storefront/backend/internal/interfaces/http/dto"

// APIResponse mirrors dto.Response with a typed data field. It exists only
// so swag can generate a concrete schema per endpoint; handlers respond
// with the dto package wrappers at runtime.
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse is the documented shape of a failed request.
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// SuccessResponse is the documented shape of a bare acknowledgement.
// @Description Simple success response without data
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}
