package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

type appointmentRepository interface {
	BookWithDonation(ctx context.Context, appointment *models.Appointment) error
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
}

type appointmentDonationRepository interface {
	ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error)
}

type appointmentHospitalRepository interface {
	FindByID(ctx context.Context, id string) (*models.Hospital, error)
}

type appointmentUserRepository interface {
	SetStreaks(ctx context.Context, id string, streaks int) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AppointmentService books appointments by consuming approved donations.
type AppointmentService struct {
	appointments appointmentRepository
	donations    appointmentDonationRepository
	hospitals    appointmentHospitalRepository
	users        appointmentUserRepository
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewAppointmentService constructs an AppointmentService instance.
func NewAppointmentService(appointments appointmentRepository, donations appointmentDonationRepository, hospitals appointmentHospitalRepository, users appointmentUserRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AppointmentService{
		appointments: appointments,
		donations:    donations,
		hospitals:    hospitals,
		users:        users,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Book reserves an appointment for the donor by consuming their oldest
// approved donation. The consume happens inside one transaction with a
// conditional update, so a lost race surfaces as a conflict instead of a
// double-spent streak.
func (s *AppointmentService) Book(ctx context.Context, donorID string, req models.BookAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if !req.Date.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "appointment date must be in the future")
	}

	hospital, err := s.hospitals.FindByID(ctx, req.HospitalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hospital not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hospital")
	}

	approved, err := s.donations.ListApprovedByDonor(ctx, donorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved donations")
	}
	if len(approved) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInsufficientStreaks, "no approved donations available to book an appointment")
	}

	// Oldest approved donation first; the repository orders by date then id.
	candidate := approved[0]

	appointment := &models.Appointment{
		ID:              uuid.NewString(),
		DonorID:         donorID,
		HospitalID:      hospital.ID,
		HospitalName:    hospital.Name,
		HospitalAddress: hospital.Address,
		Date:            req.Date.UTC(),
		Status:          models.AppointmentStatusBooked,
		DonationID:      candidate.ID,
	}

	if err := s.appointments.BookWithDonation(ctx, appointment); err != nil {
		switch {
		case errors.Is(err, repository.ErrBookingPartial):
			s.metrics.RecordBookingConflict()
			s.logger.Error("booking left partial state, needs reconciliation",
				zap.String("appointment_id", appointment.ID),
				zap.String("donation_id", candidate.ID),
				zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrPartialFailure.Code, appErrors.ErrPartialFailure.Status, appErrors.ErrPartialFailure.Message)
		case errors.Is(err, repository.ErrDonationUnavailable):
			s.metrics.RecordBookingConflict()
			return nil, appErrors.Clone(appErrors.ErrConflict, "selected donation was consumed concurrently, retry the booking")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book appointment")
		}
	}

	s.metrics.RecordAppointmentBooked()
	s.recordBookingAudit(ctx, donorID, appointment)
	s.refreshStreakCounter(ctx, donorID)

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("donor_id", donorID),
		zap.String("donation_id", candidate.ID),
		zap.String("hospital_id", hospital.ID))

	return appointment, nil
}

// List returns appointments visible to the requester. Donors only ever see
// their own bookings.
func (s *AppointmentService) List(ctx context.Context, requesterID string, requesterRole models.UserRole, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	if requesterRole != models.RoleAdmin {
		filter.DonorID = requesterID
	}

	appointments, total, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	return appointments, total, nil
}

func (s *AppointmentService) recordBookingAudit(ctx context.Context, donorID string, appointment *models.Appointment) {
	newValues, _ := json.Marshal(map[string]string{
		"hospital_id": appointment.HospitalID,
		"donation_id": appointment.DonationID,
		"date":        appointment.Date.Format(time.RFC3339),
	})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &donorID,
		Action:     models.AuditActionAppointmentBooked,
		Resource:   "appointments",
		ResourceID: &appointment.ID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record booking audit log", zap.Error(err))
	}
}

func (s *AppointmentService) refreshStreakCounter(ctx context.Context, donorID string) {
	approved, err := s.donations.ListApprovedByDonor(ctx, donorID)
	if err != nil {
		s.logger.Warn("failed to recompute streak counter", zap.String("donor_id", donorID), zap.Error(err))
		return
	}
	if err := s.users.SetStreaks(ctx, donorID, AvailableStreaks(approved)); err != nil {
		s.logger.Warn("failed to store streak counter", zap.String("donor_id", donorID), zap.Error(err))
	}
}
