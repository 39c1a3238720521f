package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lifedrop/lifedrop-api/internal/models"
)

// Booking sentinel errors surfaced to the service layer.
var (
	// ErrDonationUnavailable signals the selected donation was no longer
	// APPROVED when the booking transaction tried to consume it.
	ErrDonationUnavailable = errors.New("donation no longer approved")
	// ErrBookingPartial signals the appointment write may have survived while
	// the donation flip did not. Callers must report this distinctly.
	ErrBookingPartial = errors.New("booking left in partial state")
)

const appointmentColumns = `id, donor_id, hospital_id, hospital_name, hospital_address, date, status, donation_id, created_at`

// AppointmentRepository provides database access for appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new instance of AppointmentRepository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// BookWithDonation atomically creates the appointment and flips the consumed
// donation APPROVED -> USED. The donation update is conditional on the status
// still being APPROVED, so a concurrent booking or admin action loses cleanly
// instead of double-spending a streak.
func (r *AppointmentRepository) BookWithDonation(ctx context.Context, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	if appointment.Status == "" {
		appointment.Status = models.AppointmentStatusBooked
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}

	const insertQuery = `INSERT INTO appointments (id, donor_id, hospital_id, hospital_name, hospital_address, date, status, donation_id, created_at)
VALUES (:id, :donor_id, :hospital_id, :hospital_name, :hospital_address, :date, :status, :donation_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, appointment); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert appointment: %w", err)
	}

	const consumeQuery = `UPDATE donations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, consumeQuery, appointment.DonationID, models.DonationStatusUsed, time.Now().UTC(), models.DonationStatusApproved)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("consume donation failed (%v) and rollback failed (%v): %w", err, rbErr, ErrBookingPartial)
		}
		return fmt.Errorf("consume donation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("consume donation rows: %w", err)
	}
	if rows == 0 {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after unavailable donation failed (%v): %w", rbErr, ErrBookingPartial)
		}
		return ErrDonationUnavailable
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

// List returns appointments based on filters with total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	baseQuery := `FROM appointments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DonorID != "" {
		conditions = append(conditions, fmt.Sprintf("donor_id = $%d", len(args)+1))
		args = append(args, filter.DonorID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("date < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"date":       true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "date"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", appointmentColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// ListUpcoming returns the donor's next appointments after the given instant.
func (r *AppointmentRepository) ListUpcoming(ctx context.Context, donorID string, after time.Time, limit int) ([]models.Appointment, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE donor_id = $1 AND date >= $2 ORDER BY date ASC LIMIT $3`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, donorID, after, limit); err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return appointments, nil
}
