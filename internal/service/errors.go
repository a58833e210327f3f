package service

import (
	"errors"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// storeError maps storage sentinels to coded errors. Anything else is a
// STORAGE failure described by op.
func storeError(err error, op string) error {
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domainerrors.NotFound(storeErr.Message)
		case errors.Is(err, store.ErrAlreadyExists):
			return domainerrors.DuplicateName(storeErr.Message)
		case errors.Is(err, store.ErrInvalidInput):
			return domainerrors.Validation(storeErr.Message)
		}
	}
	return domainerrors.Storage(err, op)
}
