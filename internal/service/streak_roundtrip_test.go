package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

// donationLedger is a single stateful store shared between the donation and
// appointment services, so a test can drive the full lifecycle through both.
type donationLedger struct {
	donations    map[string]models.Donation
	appointments []models.Appointment
}

func newDonationLedger() *donationLedger {
	return &donationLedger{donations: make(map[string]models.Donation)}
}

// ledgerDonations exposes the ledger as the donation repository.
type ledgerDonations struct{ *donationLedger }

func (l ledgerDonations) Create(ctx context.Context, donation *models.Donation) error {
	l.donations[donation.ID] = *donation
	return nil
}

func (l ledgerDonations) FindByID(ctx context.Context, id string) (*models.Donation, error) {
	if d, ok := l.donations[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (l ledgerDonations) ListByDonorYear(ctx context.Context, donorID string, year int) ([]models.Donation, error) {
	var out []models.Donation
	for _, d := range l.donations {
		if d.DonorID == donorID && d.Date.UTC().Year() == year {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l ledgerDonations) ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	var out []models.Donation
	for _, d := range l.donations {
		if d.DonorID == donorID && d.Status == models.DonationStatusApproved {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (l ledgerDonations) CountApprovedOrUsedInYear(ctx context.Context, donorID string, year int, excludeID string) (int, error) {
	count := 0
	for _, d := range l.donations {
		if d.ID == excludeID || d.DonorID != donorID {
			continue
		}
		if CountsTowardLimit(d, year) {
			count++
		}
	}
	return count, nil
}

func (l ledgerDonations) UpdateStatus(ctx context.Context, id string, from, to models.DonationStatus) (bool, error) {
	d, ok := l.donations[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	l.donations[id] = d
	return true, nil
}

func (l ledgerDonations) List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error) {
	var out []models.DonationDetail
	for _, d := range l.donations {
		if filter.DonorID != "" && d.DonorID != filter.DonorID {
			continue
		}
		out = append(out, models.DonationDetail{Donation: d})
	}
	return out, len(out), nil
}

// ledgerAppointments exposes the same ledger as the appointment repository,
// with the conditional consume the real repository performs in one
// transaction.
type ledgerAppointments struct{ *donationLedger }

func (l ledgerAppointments) BookWithDonation(ctx context.Context, appointment *models.Appointment) error {
	d, ok := l.donations[appointment.DonationID]
	if !ok || d.Status != models.DonationStatusApproved {
		return repository.ErrDonationUnavailable
	}
	d.Status = models.DonationStatusUsed
	l.donations[appointment.DonationID] = d
	l.appointments = append(l.appointments, *appointment)
	return nil
}

func (l ledgerAppointments) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	return l.appointments, len(l.appointments), nil
}

func (l *donationLedger) countStatus(status models.DonationStatus) int {
	count := 0
	for _, d := range l.donations {
		if d.Status == status {
			count++
		}
	}
	return count
}

// TestStreakRoundTrip drives submit, approve and book through both services
// over one store: exactly one donation ends USED, exactly one appointment
// exists, and the available streak count returns to its pre-submit value.
func TestStreakRoundTrip(t *testing.T) {
	ledger := newDonationLedger()
	users := &mockDonationUserRepo{users: map[string]models.User{"d1": activeDonor("d1")}}
	hospitals := &mockHospitalRepo{hospitals: cityHospital()}
	clock := func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	donationSvc := NewDonationService(ledgerDonations{ledger}, users, &mockNotifier{}, nil, nil, nil, DonationConfig{AnnualLimit: 4})
	donationSvc.now = clock
	appointmentSvc := NewAppointmentService(ledgerAppointments{ledger}, ledgerDonations{ledger}, hospitals, users, nil, nil, nil)
	appointmentSvc.now = clock

	ctx := context.Background()

	baseline, err := donationSvc.Streaks(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 0, baseline.Available)

	donation, err := donationSvc.Submit(ctx, "d1", models.SubmitDonationRequest{
		Hospital:  "City General",
		BloodType: "O+",
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	pending, err := donationSvc.Streaks(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Available)

	_, err = donationSvc.Approve(ctx, "admin-1", donation.ID)
	require.NoError(t, err)

	approved, err := donationSvc.Streaks(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, approved.Available)

	appointment, err := appointmentSvc.Book(ctx, "d1", models.BookAppointmentRequest{
		HospitalID: "h1",
		Date:       time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, donation.ID, appointment.DonationID)

	assert.Equal(t, 1, ledger.countStatus(models.DonationStatusUsed))
	assert.Equal(t, 0, ledger.countStatus(models.DonationStatusApproved))
	require.Len(t, ledger.appointments, 1)

	after, err := donationSvc.Streaks(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, baseline.Available, after.Available)

	_, err = appointmentSvc.Book(ctx, "d1", models.BookAppointmentRequest{
		HospitalID: "h1",
		Date:       time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientStreaks.Code, appErrors.FromError(err).Code)
	require.Len(t, ledger.appointments, 1)
}
