package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

type hospitalRepository interface {
	List(ctx context.Context) ([]models.Hospital, error)
	FindByID(ctx context.Context, id string) (*models.Hospital, error)
}

// HospitalService serves hospital reference data.
type HospitalService struct {
	repo   hospitalRepository
	logger *zap.Logger
}

// NewHospitalService creates an instance of HospitalService.
func NewHospitalService(repo hospitalRepository, logger *zap.Logger) *HospitalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HospitalService{repo: repo, logger: logger}
}

// List returns all hospitals available for booking.
func (s *HospitalService) List(ctx context.Context) ([]models.Hospital, error) {
	hospitals, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hospitals")
	}
	if hospitals == nil {
		hospitals = []models.Hospital{}
	}
	return hospitals, nil
}

// Get returns a hospital by ID.
func (s *HospitalService) Get(ctx context.Context, id string) (*models.Hospital, error) {
	hospital, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hospital not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hospital")
	}
	return hospital, nil
}
