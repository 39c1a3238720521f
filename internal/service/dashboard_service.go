package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

type dashboardDonationRepository interface {
	ListByDonorYear(ctx context.Context, donorID string, year int) ([]models.Donation, error)
	ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error)
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
	CountByHospital(ctx context.Context, limit int) ([]repository.HospitalCount, error)
}

type dashboardAppointmentRepository interface {
	ListUpcoming(ctx context.Context, donorID string, after time.Time, limit int) ([]models.Appointment, error)
}

type dashboardUserRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL          time.Duration
	AnnualLimit       int
	UpcomingLimit     int
	TopHospitalsLimit int
}

// DashboardService composes donor and admin dashboard payloads.
type DashboardService struct {
	donations    dashboardDonationRepository
	appointments dashboardAppointmentRepository
	users        dashboardUserRepository
	cache        *CacheService
	logger       *zap.Logger
	now          func() time.Time
	cfg          DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Donations    dashboardDonationRepository
	Appointments dashboardAppointmentRepository
	Users        dashboardUserRepository
	Cache        *CacheService
	Logger       *zap.Logger
	Config       DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.AnnualLimit <= 0 {
		cfg.AnnualLimit = DefaultAnnualLimit
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 5
	}
	if cfg.TopHospitalsLimit <= 0 {
		cfg.TopHospitalsLimit = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		donations:    params.Donations,
		appointments: params.Appointments,
		users:        params.Users,
		cache:        params.Cache,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		cfg:          cfg,
	}
}

// Donor returns the donor dashboard and indicates cache utilisation.
func (s *DashboardService) Donor(ctx context.Context, donorID string) (*models.DonorDashboard, bool, error) {
	cacheKey := fmt.Sprintf("dashboard:donor:%s", donorID)
	if s.cache.Enabled() {
		var cached models.DonorDashboard
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, true, nil
		}
	}

	now := s.now()
	year := now.Year()

	yearDonations, err := s.donations.ListByDonorYear(ctx, donorID, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load donation history")
	}

	count := 0
	pending := 0
	for _, d := range yearDonations {
		if CountsTowardLimit(d, year) {
			count++
		}
		if d.Status == models.DonationStatusPending {
			pending++
		}
	}

	approved, err := s.donations.ListApprovedByDonor(ctx, donorID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved donations")
	}

	upcoming, err := s.appointments.ListUpcoming(ctx, donorID, now, s.cfg.UpcomingLimit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming appointments")
	}
	if upcoming == nil {
		upcoming = []models.Appointment{}
	}

	dashboard := &models.DonorDashboard{
		Streaks:              AvailableStreaks(approved),
		DonationsThisYear:    count,
		AnnualLimit:          s.cfg.AnnualLimit,
		PendingDonations:     pending,
		UpcomingAppointments: upcoming,
		GeneratedAt:          now,
	}

	if decision := EvaluateAnnualLimit(now, year, count, s.cfg.AnnualLimit); !decision.Allowed {
		dashboard.LimitReached = true
		dashboard.NextEligibleIn = FormatCountdown(now, time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC))
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache donor dashboard", zap.String("donor_id", donorID), zap.Error(err))
	}

	return dashboard, false, nil
}

// Admin returns the admin dashboard and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, bool, error) {
	const cacheKey = "dashboard:admin"
	if s.cache.Enabled() {
		var cached models.AdminDashboard
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, true, nil
		}
	}

	statusCounts, err := s.donations.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count donations by status")
	}

	byStatus := make(map[string]int, len(statusCounts))
	pending := 0
	for _, c := range statusCounts {
		byStatus[string(c.Status)] = c.Count
		if c.Status == models.DonationStatusPending {
			pending = c.Count
		}
	}

	hospitalCounts, err := s.donations.CountByHospital(ctx, s.cfg.TopHospitalsLimit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count donations by hospital")
	}
	topHospitals := make([]models.HospitalDonationCount, 0, len(hospitalCounts))
	for _, c := range hospitalCounts {
		topHospitals = append(topHospitals, models.HospitalDonationCount{Hospital: c.Hospital, Count: c.Count})
	}

	donorRole := models.RoleDonor
	_, totalDonors, err := s.users.List(ctx, models.UserFilter{Role: &donorRole, Page: 1, PageSize: 1})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count donors")
	}

	dashboard := &models.AdminDashboard{
		PendingReviews:    pending,
		DonationsByStatus: byStatus,
		TopHospitals:      topHospitals,
		TotalDonors:       totalDonors,
		GeneratedAt:       s.now(),
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache admin dashboard", zap.Error(err))
	}

	return dashboard, false, nil
}

// InvalidateDonor drops the donor's cached dashboard after a state change.
func (s *DashboardService) InvalidateDonor(ctx context.Context, donorID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("dashboard:donor:%s", donorID)); err != nil {
		s.logger.Warn("failed to invalidate donor dashboard cache", zap.String("donor_id", donorID), zap.Error(err))
	}
}

// InvalidateAdmin drops the cached admin dashboard after a review action.
func (s *DashboardService) InvalidateAdmin(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "dashboard:admin"); err != nil {
		s.logger.Warn("failed to invalidate admin dashboard cache", zap.Error(err))
	}
}
