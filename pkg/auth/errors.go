package auth

import (
	"errors"
	"fmt"
)

// AuthorizationError means the caller is correctly identified but not
// permitted to perform the action. It is the only error the permission
// engine itself raises; everything else propagates from collaborators.
type AuthorizationError struct {
	ResourceType string
	Action       string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("You don't have permission to %s this %s", e.Action, e.ResourceType)
}

// NewAuthorizationError creates an AuthorizationError for a resource/action pair
func NewAuthorizationError(resourceType, action string) *AuthorizationError {
	return &AuthorizationError{ResourceType: resourceType, Action: action}
}

// IsAuthorization reports whether err is an AuthorizationError
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// NotFoundError means a referenced entity does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFoundError creates a NotFoundError for an entity
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// ValidationError means an operation was rejected before any state changed
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a message
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
