package service

import (
	"github.com/smartcity/trafficops/internal/domain"
)

// CameraRepository is re-exported from domain for convenience
type CameraRepository = domain.CameraRepository
