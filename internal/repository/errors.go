package repository

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
)

// translate maps GORM errors onto repository errors and annotates them
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(ErrNotFound, msg)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return pkgerrors.Wrap(ErrDuplicateKey, msg)
	default:
		return pkgerrors.Wrap(err, msg)
	}
}
