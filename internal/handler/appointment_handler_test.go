package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	"github.com/lifedrop/lifedrop-api/internal/service"
)

type appointmentRepoStub struct {
	booked  []models.Appointment
	bookErr error
}

func (s *appointmentRepoStub) BookWithDonation(ctx context.Context, appointment *models.Appointment) error {
	if s.bookErr != nil {
		return s.bookErr
	}
	s.booked = append(s.booked, *appointment)
	return nil
}

func (s *appointmentRepoStub) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	return s.booked, len(s.booked), nil
}

type hospitalRepoStub struct {
	hospitals map[string]models.Hospital
}

func (s *hospitalRepoStub) FindByID(ctx context.Context, id string) (*models.Hospital, error) {
	if h, ok := s.hospitals[id]; ok {
		return &h, nil
	}
	return nil, sql.ErrNoRows
}

func newAppointmentHandlerForTest(repo *appointmentRepoStub, donations *donationRepoStub) *AppointmentHandler {
	hospitals := &hospitalRepoStub{hospitals: map[string]models.Hospital{
		"h1": {ID: "h1", Name: "City General", Address: "1 Main St"},
	}}
	svc := service.NewAppointmentService(repo, donations, hospitals, donationUserRepoStub{}, nil, nil, nil)
	return NewAppointmentHandler(svc, nil)
}

func bookingBody(t *testing.T, hospitalID string) []byte {
	t.Helper()
	body, err := json.Marshal(models.BookAppointmentRequest{
		HospitalID: hospitalID,
		Date:       time.Now().UTC().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return body
}

func TestAppointmentBookRequiresAuth(t *testing.T) {
	handler := newAppointmentHandlerForTest(&appointmentRepoStub{}, &donationRepoStub{})
	c, w := donationTestContext(t, http.MethodPost, "/appointments", nil)

	handler.Book(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAppointmentBookConsumesStreak(t *testing.T) {
	donations := &donationRepoStub{donations: map[string]models.Donation{
		"don-1": {ID: "don-1", DonorID: "d1", Status: models.DonationStatusApproved},
	}}
	repo := &appointmentRepoStub{}
	handler := newAppointmentHandlerForTest(repo, donations)

	c, w := donationTestContext(t, http.MethodPost, "/appointments", bookingBody(t, "h1"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Book(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.booked, 1)
	assert.Equal(t, "don-1", repo.booked[0].DonationID)
	assert.Equal(t, "City General", repo.booked[0].HospitalName)
}

func TestAppointmentBookWithoutStreakReturns422(t *testing.T) {
	handler := newAppointmentHandlerForTest(&appointmentRepoStub{}, &donationRepoStub{})

	c, w := donationTestContext(t, http.MethodPost, "/appointments", bookingBody(t, "h1"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Book(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAppointmentBookLostRaceReturns409(t *testing.T) {
	donations := &donationRepoStub{donations: map[string]models.Donation{
		"don-1": {ID: "don-1", DonorID: "d1", Status: models.DonationStatusApproved},
	}}
	repo := &appointmentRepoStub{bookErr: repository.ErrDonationUnavailable}
	handler := newAppointmentHandlerForTest(repo, donations)

	c, w := donationTestContext(t, http.MethodPost, "/appointments", bookingBody(t, "h1"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Book(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAppointmentListScopesDonor(t *testing.T) {
	repo := &appointmentRepoStub{booked: []models.Appointment{
		{ID: "a1", DonorID: "d1", HospitalName: "City General"},
	}}
	handler := newAppointmentHandlerForTest(repo, &donationRepoStub{})

	c, w := donationTestContext(t, http.MethodGet, "/appointments", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "City General")
}

func TestAppointmentBookUnknownHospitalReturns404(t *testing.T) {
	donations := &donationRepoStub{donations: map[string]models.Donation{
		"don-1": {ID: "don-1", DonorID: "d1", Status: models.DonationStatusApproved},
	}}
	handler := newAppointmentHandlerForTest(&appointmentRepoStub{}, donations)

	c, w := donationTestContext(t, http.MethodPost, "/appointments", bookingBody(t, "nowhere"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Book(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
