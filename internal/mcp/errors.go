// Package mcp implements the Model Context Protocol server for foldrank.
package mcp

import (
	"context"
	"errors"
	"fmt"

	folderrors "github.com/Aman-CERP/foldrank/internal/errors"
)

// Custom MCP error codes for foldrank.
const (
	// ErrCodeProviderFailed indicates the embedding provider failed.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeProviderUnavailable indicates the circuit is open or the
	// provider is rate limiting.
	ErrCodeProviderUnavailable = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
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

	var foldErr *folderrors.FoldError
	if errors.As(err, &foldErr) {
		return mapFoldError(foldErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapFoldError(fe *folderrors.FoldError) *MCPError {
	message := fe.Message
	if fe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", fe.Message, fe.Suggestion)
	}

	switch fe.Category {
	case folderrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case folderrors.CategoryProvider:
		switch fe.Code {
		case folderrors.ErrCodeNetworkTimeout:
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		case folderrors.ErrCodeProviderUnavailable, folderrors.ErrCodeProviderRateLimited:
			return &MCPError{Code: ErrCodeProviderUnavailable, Message: message}
		default:
			return &MCPError{Code: ErrCodeProviderFailed, Message: message}
		}
	default:
		if fe.Code == folderrors.ErrCodeCancelled {
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
