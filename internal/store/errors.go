package store

import (
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// Sentinel errors returned by store operations. These are domain errors so
// handlers can map them to HTTP codes without another translation layer.
var (
	ErrNotFound      = domainerrors.NotFound("record not found")
	ErrAlreadyExists = domainerrors.AlreadyExists("record already exists")
	ErrInvalidOwner  = domainerrors.Validation("owner identity is required")
	ErrInvalidKey    = domainerrors.Validation("invalid record key")
)
