package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidUpload   = errors.New("invalid upload")
	ErrNoFaceDetected  = errors.New("no face detected")
	ErrProviderFailure = errors.New("provider failure")
	ErrVersionConflict = errors.New("version conflict")
)
