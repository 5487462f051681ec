package domain

import "errors"

var (
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidTitle         = errors.New("invalid title")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrInvalidWorkflowState = errors.New("invalid workflow state")
	ErrInvalidClientID      = errors.New("invalid client id")
	ErrInvalidScheduledDate = errors.New("invalid scheduled date")
)
