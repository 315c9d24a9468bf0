package models

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInsufficientData       = errors.New("insufficient data")
	ErrOptimizationInProgress = errors.New("optimization already in progress")
	ErrUpstreamFailure        = errors.New("upstream failure")
)
