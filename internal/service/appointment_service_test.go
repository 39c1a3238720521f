package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

type mockAppointmentRepo struct {
	booked  []models.Appointment
	bookErr error
	list    []models.Appointment
}

func (m *mockAppointmentRepo) BookWithDonation(ctx context.Context, appointment *models.Appointment) error {
	if m.bookErr != nil {
		return m.bookErr
	}
	m.booked = append(m.booked, *appointment)
	return nil
}

func (m *mockAppointmentRepo) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	var out []models.Appointment
	for _, a := range m.list {
		if filter.DonorID != "" && a.DonorID != filter.DonorID {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

type mockApptDonationRepo struct {
	approved []models.Donation
}

func (m *mockApptDonationRepo) ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	return m.approved, nil
}

type mockHospitalRepo struct {
	hospitals map[string]models.Hospital
}

func (m *mockHospitalRepo) FindByID(ctx context.Context, id string) (*models.Hospital, error) {
	if h, ok := m.hospitals[id]; ok {
		return &h, nil
	}
	return nil, sql.ErrNoRows
}

type mockApptUserRepo struct {
	streaks map[string]int
	audits  []models.AuditLog
}

func (m *mockApptUserRepo) SetStreaks(ctx context.Context, id string, streaks int) error {
	if m.streaks == nil {
		m.streaks = make(map[string]int)
	}
	m.streaks[id] = streaks
	return nil
}

func (m *mockApptUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func cityHospital() map[string]models.Hospital {
	return map[string]models.Hospital{
		"h1": {ID: "h1", Name: "City General", Address: "1 Main St"},
	}
}

func newAppointmentService(appts *mockAppointmentRepo, donations *mockApptDonationRepo, hospitals *mockHospitalRepo, users *mockApptUserRepo) *AppointmentService {
	svc := NewAppointmentService(appts, donations, hospitals, users, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func futureDate() time.Time {
	return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
}

func TestBookConsumesOldestDonation(t *testing.T) {
	appts := &mockAppointmentRepo{}
	donations := &mockApptDonationRepo{approved: []models.Donation{
		{ID: "old", DonorID: "d1", Status: models.DonationStatusApproved, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "new", DonorID: "d1", Status: models.DonationStatusApproved, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}
	users := &mockApptUserRepo{}
	svc := newAppointmentService(appts, donations, &mockHospitalRepo{hospitals: cityHospital()}, users)

	appointment, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "h1", Date: futureDate()})
	require.NoError(t, err)
	assert.Equal(t, "old", appointment.DonationID)
	assert.Equal(t, models.AppointmentStatusBooked, appointment.Status)
	assert.Equal(t, "City General", appointment.HospitalName)
	require.Len(t, appts.booked, 1)
	require.Len(t, users.audits, 1)
	assert.Equal(t, models.AuditActionAppointmentBooked, users.audits[0].Action)
}

func TestBookRequiresAvailableStreak(t *testing.T) {
	svc := newAppointmentService(&mockAppointmentRepo{}, &mockApptDonationRepo{}, &mockHospitalRepo{hospitals: cityHospital()}, &mockApptUserRepo{})

	_, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "h1", Date: futureDate()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientStreaks.Code, appErrors.FromError(err).Code)
}

func TestBookRejectsUnknownHospital(t *testing.T) {
	donations := &mockApptDonationRepo{approved: []models.Donation{{ID: "a", DonorID: "d1", Status: models.DonationStatusApproved}}}
	svc := newAppointmentService(&mockAppointmentRepo{}, donations, &mockHospitalRepo{}, &mockApptUserRepo{})

	_, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "missing", Date: futureDate()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookRejectsPastDate(t *testing.T) {
	svc := newAppointmentService(&mockAppointmentRepo{}, &mockApptDonationRepo{}, &mockHospitalRepo{hospitals: cityHospital()}, &mockApptUserRepo{})

	_, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "h1", Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookMapsLostRaceToConflict(t *testing.T) {
	appts := &mockAppointmentRepo{bookErr: repository.ErrDonationUnavailable}
	donations := &mockApptDonationRepo{approved: []models.Donation{{ID: "a", DonorID: "d1", Status: models.DonationStatusApproved}}}
	svc := newAppointmentService(appts, donations, &mockHospitalRepo{hospitals: cityHospital()}, &mockApptUserRepo{})

	_, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "h1", Date: futureDate()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBookSurfacesPartialFailure(t *testing.T) {
	appts := &mockAppointmentRepo{bookErr: repository.ErrBookingPartial}
	donations := &mockApptDonationRepo{approved: []models.Donation{{ID: "a", DonorID: "d1", Status: models.DonationStatusApproved}}}
	svc := newAppointmentService(appts, donations, &mockHospitalRepo{hospitals: cityHospital()}, &mockApptUserRepo{})

	_, err := svc.Book(context.Background(), "d1", models.BookAppointmentRequest{HospitalID: "h1", Date: futureDate()})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPartialFailure.Code, appErr.Code)
}

func TestAppointmentListScopesDonors(t *testing.T) {
	appts := &mockAppointmentRepo{list: []models.Appointment{
		{ID: "a1", DonorID: "d1"},
		{ID: "a2", DonorID: "d2"},
	}}
	svc := newAppointmentService(appts, &mockApptDonationRepo{}, &mockHospitalRepo{}, &mockApptUserRepo{})

	appointments, total, err := svc.List(context.Background(), "d1", models.RoleDonor, models.AppointmentFilter{DonorID: "d2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, appointments, 1)
	assert.Equal(t, "d1", appointments[0].DonorID)

	_, total, err = svc.List(context.Background(), "admin", models.RoleAdmin, models.AppointmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
