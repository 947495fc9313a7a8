// Package mcp exposes the hotel context engine as a Model Context Protocol
// server.
package mcp

import (
	"context"
	"errors"
	"fmt"

	herrors "github.com/Aman-CERP/hotelrag/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates no vector index has been ingested.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates the query could not be embedded.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors.
var (
	ErrIndexNotFound    = errors.New("index not found")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError is an MCP protocol error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var herr *herrors.Error
	if errors.As(err, &herr) {
		return mapError(herr)
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{Code: ErrCodeIndexNotFound, Message: "Index not found. Run 'hotelrag ingest' first."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError returns an invalid-params error with msg.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError returns an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError returns an error for an unknown resource.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapError(e *herrors.Error) *MCPError {
	message := e.Message
	if e.Suggestion != "" {
		message = fmt.Sprintf("%s %s", e.Message, e.Suggestion)
	}

	switch e.Category {
	case herrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case herrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case herrors.CategoryIO:
		if e.Code == herrors.ErrCodeCorruptIndex || e.Code == herrors.ErrCodeFileNotFound {
			return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
		}
	case herrors.CategoryInternal:
		if e.Code == herrors.ErrCodeEmbeddingFailed {
			return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
		}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
