package repo

import (
	"context"
	"errors"
	"fmt"

	"regdesk/internal/model"
)

var (
	ErrNotFound           = errors.New("registration not found")
	ErrDuplicateReference = errors.New("duplicate payment reference")
	ErrUnavailable        = errors.New("store unavailable")
	// ErrInvalidData marks values the backend refused as too long or out of range.
	ErrInvalidData = errors.New("value does not fit the stored column")
)

// Repository is the record store contract shared by every backend.
// Backend failures are returned wrapping ErrUnavailable, never as ErrNotFound.
type Repository interface {
	CountByReference(ctx context.Context, ref string) (int, error)
	Insert(ctx context.Context, reg *model.Registration) (*model.Registration, error)
	GetByReference(ctx context.Context, ref string) (*model.Registration, error)
	GetAll(ctx context.Context) ([]model.Registration, error)
	UpdateFields(ctx context.Context, ref string, patch model.RegistrationPatch) error
	DeleteByReference(ctx context.Context, ref string) (int64, error)
}

func invalidData(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInvalidData, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
