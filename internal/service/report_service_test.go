package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/jobs"
)

type mockReportStore struct {
	jobs    map[string]models.ReportJob
	updates []repository.UpdateReportJobParams
}

func (m *mockReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]models.ReportJob)
	}
	if job.ID == "" {
		job.ID = "job-1"
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := m.jobs[id]; ok {
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	m.updates = append(m.updates, params)
	if j, ok := m.jobs[id]; ok {
		if params.Status != nil {
			j.Status = *params.Status
		}
		if params.Progress != nil {
			j.Progress = *params.Progress
		}
		if params.ResultURL != nil {
			j.ResultURL = params.ResultURL
		}
		m.jobs[id] = j
	}
	return nil
}

func (m *mockReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, j := range m.jobs {
		if j.Status == models.ReportStatusQueued {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockReportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type mockReportDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockReportDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockExportGenerator struct {
	result *ExportResult
	err    error
}

func (m *mockExportGenerator) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestCreateJobPinsDonorScope(t *testing.T) {
	store := &mockReportStore{}
	dispatcher := &mockReportDispatcher{}
	svc := NewReportService(store, dispatcher, nil, nil, ReportServiceConfig{})

	otherDonor := "someone-else"
	resp, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:    models.ReportTypeDonations,
		Format:  models.ReportFormatCSV,
		Year:    2025,
		DonorID: &otherDonor,
	}, "donor-1", models.RoleDonor)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)

	stored := store.jobs[resp.ID]
	require.NotNil(t, stored.Params.DonorID)
	assert.Equal(t, "donor-1", *stored.Params.DonorID)
	require.Len(t, dispatcher.enqueued, 1)
}

func TestCreateJobAdminKeepsRequestedScope(t *testing.T) {
	store := &mockReportStore{}
	dispatcher := &mockReportDispatcher{}
	svc := NewReportService(store, dispatcher, nil, nil, ReportServiceConfig{})

	donor := "donor-7"
	resp, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:    models.ReportTypeAppointments,
		Format:  models.ReportFormatPDF,
		DonorID: &donor,
	}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)

	stored := store.jobs[resp.ID]
	require.NotNil(t, stored.Params.DonorID)
	assert.Equal(t, "donor-7", *stored.Params.DonorID)
}

func TestCreateJobRejectsUnsupportedType(t *testing.T) {
	svc := NewReportService(&mockReportStore{}, &mockReportDispatcher{}, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:   models.ReportType("inventory"),
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateJobMarksFailedWhenEnqueueFails(t *testing.T) {
	store := &mockReportStore{}
	dispatcher := &mockReportDispatcher{err: errors.New("queue full")}
	svc := NewReportService(store, dispatcher, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:   models.ReportTypeDonations,
		Format: models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.Error(t, err)
	require.NotEmpty(t, store.updates)
	assert.Equal(t, models.ReportStatusFailed, *store.updates[len(store.updates)-1].Status)
}

func TestGetStatusEnforcesOwnership(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", CreatedBy: "donor-1", Status: models.ReportStatusFinished, Progress: 100},
	}}
	svc := NewReportService(store, &mockReportDispatcher{}, nil, nil, ReportServiceConfig{})

	resp, err := svc.GetStatus(context.Background(), "job-1", "donor-1", models.RoleDonor)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, resp.Status)

	_, err = svc.GetStatus(context.Background(), "job-1", "donor-2", models.RoleDonor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(context.Background(), "job-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestReportWorkerMarksFinished(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", Type: models.ReportTypeDonations, Status: models.ReportStatusQueued},
	}}
	worker := NewReportWorker(store, &mockExportGenerator{result: &ExportResult{URL: "/api/v1/reports/download/tok"}}, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	finished := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, finished.Status)
	assert.Equal(t, 100, finished.Progress)
	require.NotNil(t, finished.ResultURL)
	assert.Contains(t, *finished.ResultURL, "tok")
}

func TestReportWorkerRequeuesOnFailure(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", Type: models.ReportTypeDonations, Status: models.ReportStatusQueued},
	}}
	worker := NewReportWorker(store, &mockExportGenerator{err: errors.New("render failed")}, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, store.jobs["job-1"].Status)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 3})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, store.jobs["job-1"].Status)
}
