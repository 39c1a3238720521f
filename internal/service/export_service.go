package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/pkg/export"
	"github.com/lifedrop/lifedrop-api/pkg/storage"
)

type exportDonationLister interface {
	List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error)
}

type exportAppointmentLister interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	PageSize  int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	donations    exportDonationLister
	appointments exportAppointmentLister
	storage      fileStorage
	csv          csvRenderer
	pdf          pdfRenderer
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(donations exportDonationLister, appointments exportAppointmentLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		donations:    donations,
		appointments: appointments,
		storage:      store,
		csv:          csv,
		pdf:          pdf,
		signer:       signer,
		logger:       logger,
		cfg:          cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	yearPart := "all"
	if job.Params.Year > 0 {
		yearPart = strconv.Itoa(job.Params.Year)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), yearPart, timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeDonations:
		return s.buildDonationDataset(ctx, job.Params)
	case models.ReportTypeAppointments:
		return s.buildAppointmentDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildDonationDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	headers := []string{"Donor", "Email", "Hospital", "Blood Type", "Date", "Status"}
	rows := make([]map[string]string, 0)

	filter := models.DonationFilter{
		Year:      params.Year,
		Status:    params.Status,
		PageSize:  s.cfg.PageSize,
		SortBy:    "date",
		SortOrder: "ASC",
	}
	if params.DonorID != nil {
		filter.DonorID = *params.DonorID
	}

	for page := 1; ; page++ {
		filter.Page = page
		donations, total, err := s.donations.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("load donations page %d: %w", page, err)
		}
		for _, d := range donations {
			rows = append(rows, map[string]string{
				"Donor":      d.DonorName,
				"Email":      d.DonorEmail,
				"Hospital":   d.Hospital,
				"Blood Type": d.BloodType,
				"Date":       d.Date.UTC().Format("2006-01-02"),
				"Status":     string(d.Status),
			})
		}
		if len(rows) >= total || len(donations) == 0 {
			break
		}
	}

	title := "Donation Report"
	if params.Year > 0 {
		title = fmt.Sprintf("Donation Report %d", params.Year)
	}
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}

func (s *ExportService) buildAppointmentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	headers := []string{"Donor ID", "Hospital", "Address", "Date", "Status", "Donation ID"}
	rows := make([]map[string]string, 0)

	filter := models.AppointmentFilter{
		PageSize:  s.cfg.PageSize,
		SortBy:    "date",
		SortOrder: "ASC",
	}
	if params.DonorID != nil {
		filter.DonorID = *params.DonorID
	}
	if params.Year > 0 {
		from := time.Date(params.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		filter.From = &from
		filter.To = &to
	}

	for page := 1; ; page++ {
		filter.Page = page
		appointments, total, err := s.appointments.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("load appointments page %d: %w", page, err)
		}
		for _, a := range appointments {
			rows = append(rows, map[string]string{
				"Donor ID":    a.DonorID,
				"Hospital":    a.HospitalName,
				"Address":     a.HospitalAddress,
				"Date":        a.Date.UTC().Format("2006-01-02 15:04"),
				"Status":      string(a.Status),
				"Donation ID": a.DonationID,
			})
		}
		if len(rows) >= total || len(appointments) == 0 {
			break
		}
	}

	title := "Appointment Report"
	if params.Year > 0 {
		title = fmt.Sprintf("Appointment Report %d", params.Year)
	}
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}
