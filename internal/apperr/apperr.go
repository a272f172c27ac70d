// Package apperr holds the error taxonomy shared by services, the session authority and handlers.
package apperr

import (
	"errors"
	"fmt"
)

type AuthReason string

const (
	InvalidCredentials AuthReason = "invalid_credentials"
	InvalidInvite      AuthReason = "invalid_invite"
	NetworkFailure     AuthReason = "network_failure"
)

type AuthzReason string

const (
	Unauthorized AuthzReason = "unauthorized"
	NotAdmin     AuthzReason = "not_admin"
)

type NotFoundReason string

const (
	RoomMissing    NotFoundReason = "room_missing"
	MessageMissing NotFoundReason = "message_missing"
	UserMissing    NotFoundReason = "user_missing"
	NoticeMissing  NotFoundReason = "notice_missing"
)

var (
	ErrInvalidCredentials = &AuthError{Reason: InvalidCredentials}
	ErrInvalidInvite      = &AuthError{Reason: InvalidInvite}
	ErrNetworkFailure     = &AuthError{Reason: NetworkFailure}

	ErrUnauthorized = &AuthzError{Reason: Unauthorized}
	ErrNotAdmin     = &AuthzError{Reason: NotAdmin}

	ErrRoomMissing    = &NotFoundError{Reason: RoomMissing}
	ErrMessageMissing = &NotFoundError{Reason: MessageMissing}
	ErrUserMissing    = &NotFoundError{Reason: UserMissing}
	ErrNoticeMissing  = &NotFoundError{Reason: NoticeMissing}
)

type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + string(e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError with the same reason, so errors.Is works against the sentinels.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

type AuthzError struct {
	Reason AuthzReason
}

func (e *AuthzError) Error() string { return "authz: " + string(e.Reason) }

func (e *AuthzError) Is(target error) bool {
	t, ok := target.(*AuthzError)
	return ok && t.Reason == e.Reason
}

type NotFoundError struct {
	Reason NotFoundReason
}

func (e *NotFoundError) Error() string { return "not found: " + string(e.Reason) }

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.Reason == e.Reason
}

// Network wraps a transport or storage failure as AuthError{NetworkFailure}.
func Network(err error) error {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &AuthError{Reason: NetworkFailure, Err: err}
}

// IsNotFound reports whether err is any NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError is a rejected input. Msg is safe to show to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
