package models

import (
	"errors"
)

var (
	ErrNoOptions          = errors.New("no initialized model options")
	ErrTargetLenMismatch  = errors.New("target length does not match target rows")
	ErrNoTrainingMatrix   = errors.New("no training matrix")
	ErrNoTargetMatrix     = errors.New("no target matrix")
	ErrNoDesignMatrix     = errors.New("no design matrix for inference")
	ErrNotFitted          = errors.New("model has not been fitted")
	ErrInvalidAlpha       = errors.New("quantile level must be within (0, 1)")
	ErrNoTrainingRows     = errors.New("no training rows")
	ErrFeatureLenMismatch = errors.New("number of features does not match the fitted model")
)
