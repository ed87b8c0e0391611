package service

import "errors"

var (
	ErrNotFound           = errors.New("error not found")
	ErrValidation         = errors.New("error validation failed")
	ErrAuthentication     = errors.New("error source authentication failed")
	ErrFetch              = errors.New("error market listing fetch failed")
	ErrBackendUnavailable = errors.New("error backend unavailable")
	ErrUpsert             = errors.New("error backend upsert failed")
)
