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
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/jobs"
)

// JobTypeMilestoneNotification identifies the queued milestone notification.
const JobTypeMilestoneNotification = "donation.milestone"

// MilestoneDonationCount is the approved-donation count that triggers the
// one-time congratulation notification.
const MilestoneDonationCount = 4

type donationRepository interface {
	Create(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, id string) (*models.Donation, error)
	ListByDonorYear(ctx context.Context, donorID string, year int) ([]models.Donation, error)
	ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error)
	CountApprovedOrUsedInYear(ctx context.Context, donorID string, year int, excludeID string) (int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.DonationStatus) (bool, error)
	List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error)
}

type donationUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetStreaks(ctx context.Context, id string, streaks int) error
	MarkFourDonationsNotified(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type notificationEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// DonationConfig tunes the donation lifecycle policies.
type DonationConfig struct {
	AnnualLimit           int
	MilestoneNotification bool
}

// DonationService implements the donation submission and review lifecycle.
type DonationService struct {
	donations     donationRepository
	users         donationUserRepository
	notifications notificationEnqueuer
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	config        DonationConfig
	now           func() time.Time
}

// NewDonationService constructs a DonationService instance.
func NewDonationService(donations donationRepository, users donationUserRepository, notifications notificationEnqueuer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config DonationConfig) *DonationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AnnualLimit <= 0 {
		config.AnnualLimit = DefaultAnnualLimit
	}
	return &DonationService{
		donations:     donations,
		users:         users,
		notifications: notifications,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a donor's donation as PENDING after an advisory limit check.
// The check reads outside any lock, so a concurrent submit can slip past it;
// approval repeats the check authoritatively.
func (s *DonationService) Submit(ctx context.Context, donorID string, req models.SubmitDonationRequest) (*models.Donation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid donation payload")
	}

	ok, legacy := models.KnownBloodType(req.BloodType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown blood type")
	}
	if legacy {
		s.logger.Warn("donation submitted with legacy blood type",
			zap.String("donor_id", donorID),
			zap.String("blood_type", req.BloodType))
	}
	if req.Date.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "donation date cannot be in the future")
	}

	donor, err := s.users.FindByID(ctx, donorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "donor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load donor")
	}
	if !donor.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	existing, err := s.donations.ListByDonorYear(ctx, donorID, req.Date.UTC().Year())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load donation history")
	}

	decision := CanAcceptDonation(s.now(), req.Date, existing, s.config.AnnualLimit)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded, decision.Message)
	}

	donation := &models.Donation{
		ID:        uuid.NewString(),
		DonorID:   donorID,
		Hospital:  req.Hospital,
		BloodType: req.BloodType,
		Date:      req.Date.UTC(),
		Status:    models.DonationStatusPending,
	}
	if err := s.donations.Create(ctx, donation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store donation")
	}

	s.metrics.RecordDonationSubmitted()
	s.logger.Info("donation submitted",
		zap.String("donation_id", donation.ID),
		zap.String("donor_id", donorID),
		zap.Int("year_count", decision.Count))

	return donation, nil
}

// Approve moves a PENDING donation to APPROVED. The annual limit is checked
// against a database-side count of the donor's other approved or used
// donations in the donation's year. The conditional update serialises
// concurrent reviews of the same donation only; approvals of different
// donations for the same donor read the count independently, so the count is
// taken as late as possible before the update.
func (s *DonationService) Approve(ctx context.Context, adminID, donationID string) (*models.Donation, error) {
	donation, err := s.loadForReview(ctx, donationID, models.DonationStatusApproved)
	if err != nil {
		return nil, err
	}

	year := donation.Date.UTC().Year()
	count, err := s.donations.CountApprovedOrUsedInYear(ctx, donation.DonorID, year, donation.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count annual donations")
	}

	decision := EvaluateAnnualLimit(s.now(), year, count, s.config.AnnualLimit)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrLimitExceeded, decision.Message)
	}

	changed, err := s.donations.UpdateStatus(ctx, donation.ID, models.DonationStatusPending, models.DonationStatusApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update donation")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "donation was reviewed concurrently")
	}

	donation.Status = models.DonationStatusApproved
	donation.UpdatedAt = s.now()

	s.metrics.RecordDonationReviewed(true)
	s.recordReviewAudit(ctx, adminID, donation, models.AuditActionDonationApprove)
	s.refreshStreakCounter(ctx, donation.DonorID)
	s.maybeNotifyMilestone(ctx, donation.DonorID, count+1)

	s.logger.Info("donation approved",
		zap.String("donation_id", donation.ID),
		zap.String("donor_id", donation.DonorID),
		zap.String("admin_id", adminID),
		zap.Int("year_count", count+1))

	return donation, nil
}

// Reject moves a PENDING donation to REJECTED. Rejection never consumes
// annual capacity, so no limit check applies.
func (s *DonationService) Reject(ctx context.Context, adminID, donationID string) (*models.Donation, error) {
	donation, err := s.loadForReview(ctx, donationID, models.DonationStatusRejected)
	if err != nil {
		return nil, err
	}

	changed, err := s.donations.UpdateStatus(ctx, donation.ID, models.DonationStatusPending, models.DonationStatusRejected)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update donation")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "donation was reviewed concurrently")
	}

	donation.Status = models.DonationStatusRejected
	donation.UpdatedAt = s.now()

	s.metrics.RecordDonationReviewed(false)
	s.recordReviewAudit(ctx, adminID, donation, models.AuditActionDonationReject)

	s.logger.Info("donation rejected",
		zap.String("donation_id", donation.ID),
		zap.String("donor_id", donation.DonorID),
		zap.String("admin_id", adminID))

	return donation, nil
}

// List returns donations visible to the requester. Donors only ever see their
// own records regardless of the filter they pass.
func (s *DonationService) List(ctx context.Context, requesterID string, requesterRole models.UserRole, filter models.DonationFilter) ([]models.DonationDetail, int, error) {
	if requesterRole != models.RoleAdmin {
		filter.DonorID = requesterID
	}

	donations, total, err := s.donations.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list donations")
	}
	return donations, total, nil
}

// Streaks reports the donor's available streaks with the backing approved
// donations, oldest first.
func (s *DonationService) Streaks(ctx context.Context, donorID string) (*models.StreakSummary, error) {
	approved, err := s.donations.ListApprovedByDonor(ctx, donorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved donations")
	}
	if approved == nil {
		approved = []models.Donation{}
	}
	return &models.StreakSummary{
		Available: AvailableStreaks(approved),
		Donations: approved,
	}, nil
}

func (s *DonationService) loadForReview(ctx context.Context, donationID string, target models.DonationStatus) (*models.Donation, error) {
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "donation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load donation")
	}
	if !models.ValidTransition(donation.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "donation is not pending review")
	}
	return donation, nil
}

func (s *DonationService) recordReviewAudit(ctx context.Context, adminID string, donation *models.Donation, action string) {
	newValues, _ := json.Marshal(map[string]string{
		"donor_id": donation.DonorID,
		"status":   string(donation.Status),
	})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     action,
		Resource:   "donations",
		ResourceID: &donation.ID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record donation review audit log", zap.Error(err))
	}
}

// refreshStreakCounter keeps the legacy denormalised users.streaks column in
// step with the approved-donation count. The column is informational; a
// failure here never fails the review.
func (s *DonationService) refreshStreakCounter(ctx context.Context, donorID string) {
	approved, err := s.donations.ListApprovedByDonor(ctx, donorID)
	if err != nil {
		s.logger.Warn("failed to recompute streak counter", zap.String("donor_id", donorID), zap.Error(err))
		return
	}
	if err := s.users.SetStreaks(ctx, donorID, AvailableStreaks(approved)); err != nil {
		s.logger.Warn("failed to store streak counter", zap.String("donor_id", donorID), zap.Error(err))
	}
}

func (s *DonationService) maybeNotifyMilestone(ctx context.Context, donorID string, yearCount int) {
	if !s.config.MilestoneNotification || s.notifications == nil || yearCount < MilestoneDonationCount {
		return
	}

	donor, err := s.users.FindByID(ctx, donorID)
	if err != nil {
		s.logger.Warn("failed to load donor for milestone notification", zap.String("donor_id", donorID), zap.Error(err))
		return
	}
	if donor.HasNotifiedFourDonations {
		return
	}

	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: JobTypeMilestoneNotification,
		Payload: models.MilestoneNotification{
			UserID:    donor.ID,
			Email:     donor.Email,
			FullName:  donor.FullName,
			Donations: yearCount,
		},
	}
	if err := s.notifications.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue milestone notification", zap.String("donor_id", donorID), zap.Error(err))
		return
	}
	if err := s.users.MarkFourDonationsNotified(ctx, donorID); err != nil {
		s.logger.Warn("failed to mark milestone notified", zap.String("donor_id", donorID), zap.Error(err))
	}
}
