package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/pkg/export"
	"github.com/lifedrop/lifedrop-api/pkg/storage"
)

type donationListerStub struct{}

func (donationListerStub) List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error) {
	if filter.Page > 1 {
		return nil, 2, nil
	}
	return []models.DonationDetail{
		{
			Donation: models.Donation{
				ID: "don-1", DonorID: "d1", Hospital: "City General", BloodType: "O+",
				Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Status: models.DonationStatusApproved,
			},
			DonorName: "Jane Donor", DonorEmail: "jane@example.com",
		},
		{
			Donation: models.Donation{
				ID: "don-2", DonorID: "d1", Hospital: "St. Mary", BloodType: "A",
				Date: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), Status: models.DonationStatusUsed,
			},
			DonorName: "Jane Donor", DonorEmail: "jane@example.com",
		},
	}, 2, nil
}

type appointmentListerStub struct{}

func (appointmentListerStub) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	if filter.Page > 1 {
		return nil, 1, nil
	}
	return []models.Appointment{
		{
			ID: "a1", DonorID: "d1", HospitalName: "City General", HospitalAddress: "1 Main St",
			Date: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC), Status: models.AppointmentStatusBooked, DonationID: "don-1",
		},
	}, 1, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(donationListerStub{}, appointmentListerStub{}, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateDonationCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeDonations,
		Params:    models.ReportJobParams{Year: 2025, Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/reports/download/")

	path := store.Path(result.RelativePath)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Jane Donor")
	require.Contains(t, string(data), "City General")
}

func TestExportServiceGenerateAppointmentPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeAppointments,
		Params:    models.ReportJobParams{Year: 2025, Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportType("inventory"),
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
