package domain

import "errors"

// Sentinel errors shared by repositories and services.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrTemplateNotFound     = errors.New("certificate template not found")
	ErrDuplicateParticipant = errors.New("participant already registered")
)
