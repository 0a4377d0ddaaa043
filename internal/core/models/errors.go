package models

import "errors"

// Registration errors surfaced synchronously at the API boundary.
var (
	ErrInvalidGeometry   = errors.New("invalid collider geometry")
	ErrInvalidCollider   = errors.New("invalid collider")
	ErrInvalidBody       = errors.New("invalid rigid body")
	ErrEntityNotFound    = errors.New("entity not found")
	ErrAlreadyRegistered = errors.New("entity already registered")
)
