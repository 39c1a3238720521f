package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/service"
	"github.com/lifedrop/lifedrop-api/pkg/response"
)

type donationRepoStub struct {
	donations map[string]models.Donation
}

func (s *donationRepoStub) Create(ctx context.Context, donation *models.Donation) error {
	if s.donations == nil {
		s.donations = make(map[string]models.Donation)
	}
	s.donations[donation.ID] = *donation
	return nil
}

func (s *donationRepoStub) FindByID(ctx context.Context, id string) (*models.Donation, error) {
	if d, ok := s.donations[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *donationRepoStub) ListByDonorYear(ctx context.Context, donorID string, year int) ([]models.Donation, error) {
	return nil, nil
}

func (s *donationRepoStub) ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	var out []models.Donation
	for _, d := range s.donations {
		if d.DonorID == donorID && d.Status == models.DonationStatusApproved {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *donationRepoStub) CountApprovedOrUsedInYear(ctx context.Context, donorID string, year int, excludeID string) (int, error) {
	return 0, nil
}

func (s *donationRepoStub) UpdateStatus(ctx context.Context, id string, from, to models.DonationStatus) (bool, error) {
	d, ok := s.donations[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	s.donations[id] = d
	return true, nil
}

func (s *donationRepoStub) List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error) {
	return nil, 0, nil
}

type donationUserRepoStub struct{}

func (donationUserRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Role: models.RoleDonor, Active: true}, nil
}

func (donationUserRepoStub) SetStreaks(ctx context.Context, id string, streaks int) error { return nil }

func (donationUserRepoStub) MarkFourDonationsNotified(ctx context.Context, id string) error {
	return nil
}

func (donationUserRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func newDonationHandlerForTest(repo *donationRepoStub) *DonationHandler {
	svc := service.NewDonationService(repo, donationUserRepoStub{}, nil, nil, nil, nil, service.DonationConfig{AnnualLimit: 4})
	return NewDonationHandler(svc, nil)
}

func donationTestContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestDonationSubmitRequiresAuth(t *testing.T) {
	handler := newDonationHandlerForTest(&donationRepoStub{})
	c, w := donationTestContext(t, http.MethodPost, "/donations", nil)

	handler.Submit(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDonationSubmitRejectsInvalidBody(t *testing.T) {
	handler := newDonationHandlerForTest(&donationRepoStub{})
	c, w := donationTestContext(t, http.MethodPost, "/donations", []byte(`not json`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDonationSubmitCreatesPending(t *testing.T) {
	repo := &donationRepoStub{}
	handler := newDonationHandlerForTest(repo)

	body, _ := json.Marshal(models.SubmitDonationRequest{
		Hospital:  "City General",
		BloodType: "O+",
		Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	c, w := donationTestContext(t, http.MethodPost, "/donations", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var donation models.Donation
	require.NoError(t, json.Unmarshal(payload, &donation))
	assert.Equal(t, models.DonationStatusPending, donation.Status)
	assert.Len(t, repo.donations, 1)
}

func TestDonationApproveTransitions(t *testing.T) {
	repo := &donationRepoStub{donations: map[string]models.Donation{
		"don-1": {ID: "don-1", DonorID: "d1", Status: models.DonationStatusPending, Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	handler := newDonationHandlerForTest(repo)

	c, w := donationTestContext(t, http.MethodPut, "/donations/don-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "don-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DonationStatusApproved, repo.donations["don-1"].Status)
}

func TestDonationApproveMissingReturns404(t *testing.T) {
	handler := newDonationHandlerForTest(&donationRepoStub{})

	c, w := donationTestContext(t, http.MethodPut, "/donations/missing/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Approve(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDonationStreaksReturnsSummary(t *testing.T) {
	repo := &donationRepoStub{donations: map[string]models.Donation{
		"don-1": {ID: "don-1", DonorID: "d1", Status: models.DonationStatusApproved},
	}}
	handler := newDonationHandlerForTest(repo)

	c, w := donationTestContext(t, http.MethodGet, "/donations/streaks", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "d1", Role: models.RoleDonor})

	handler.Streaks(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":1`)
}
