package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidSchool = errors.New("invalid_school")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether an actor may perform action on object within a school.
// Actors are "system" or "staff:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, schoolID string, object string, action string) error
}
