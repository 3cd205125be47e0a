package app

import (
	"errors"
	"fmt"
	"net/http"

	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/approval"
	"sectorboard/api/internal/auth"
	"sectorboard/api/internal/authpw"
	"sectorboard/api/internal/directory"
	"sectorboard/api/internal/rbac"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/subtask"
)

var errUnauthorized = errors.New("unauthorized")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError turns a service error into a response. Messages never carry backend error text.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	switch {
	case errors.Is(err, errUnauthorized),
		errors.Is(err, activity.ErrUnauthorized),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", nil
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "You are not allowed to do that.", nil
	case errors.Is(err, activity.ErrNotFound),
		errors.Is(err, subtask.ErrNotFound),
		errors.Is(err, approval.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, approval.ErrNotPending):
		return http.StatusConflict, "ALREADY_REVIEWED", "This request was already reviewed.", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered.", nil
	case errors.Is(err, activity.ErrNoSector):
		return http.StatusUnprocessableEntity, "NO_SECTOR", "Your profile has no sector.", nil
	case errors.Is(err, activity.ErrEmptyPatch):
		return http.StatusUnprocessableEntity, "EMPTY_PATCH", "Nothing to update.", nil
	case errors.Is(err, activity.ErrInvalidInput),
		errors.Is(err, subtask.ErrInvalidInput),
		errors.Is(err, directory.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Some fields are missing or invalid.", nil
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, authpw.ErrUnknownSector),
		errors.Is(err, authpw.ErrInvalidInvitation):
		return http.StatusUnprocessableEntity, "SIGNUP_INVALID", signUpMessage(err), nil
	case errors.Is(err, approval.ErrApprovalNotRecorded):
		return http.StatusInternalServerError, "APPROVAL_NOT_RECORDED", "The profile was created but the approval could not be recorded.", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// signUpMessage only ever returns the authpw sentinel texts, which are written for users.
func signUpMessage(err error) string {
	for _, known := range []error{
		authpw.ErrMissingFields,
		authpw.ErrInvalidEmail,
		authpw.ErrWeakPassword,
		authpw.ErrUnknownSector,
		authpw.ErrInvalidInvitation,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Sign-up failed."
}

// notice is the user-facing message for a failed mutation.
func notice(action string) string {
	return fmt.Sprintf("Could not %s.", action)
}

// mutationError keeps the mapped status and code but always names the failed action.
// Authorization failures keep their own message.
func mutationError(action string, err error) *DomainError {
	status, code, message, details := mapError(err)
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		message = notice(action)
	}
	return domainError(status, code, message, details)
}
