package deepface

import (
	"errors"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

var (
	ErrUnavailable     = provider.ErrUnavailable
	ErrInvalidResponse = provider.ErrInvalidResponse
	ErrTimeout         = errors.New("deepface request timeout")
)
