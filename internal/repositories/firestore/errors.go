package firestore

import (
	"errors"

	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

func wrapClosingError(op, date string, err error) error {
	if err == nil {
		return nil
	}
	var closingErr *repositories.ClosingError
	if errors.As(err, &closingErr) {
		return closingErr
	}
	wrapped := pfirestore.WrapError(op, err)
	var fsErr *pfirestore.Error
	if errors.As(wrapped, &fsErr) && fsErr.IsAlreadyExists() {
		return repositories.NewClosingError(repositories.ClosingErrorAlreadyExists, date, "closing already recorded", fsErr)
	}
	return wrapped
}
