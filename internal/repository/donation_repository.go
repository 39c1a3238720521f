package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lifedrop/lifedrop-api/internal/models"
)

const donationColumns = `id, donor_id, hospital, blood_type, date, status, created_at, updated_at`

// DonationRepository provides database access for donation records.
type DonationRepository struct {
	db *sqlx.DB
}

// NewDonationRepository creates a new instance of DonationRepository.
func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create inserts a new donation. The id is generated client-side when absent,
// which keeps retried creates idempotent.
func (r *DonationRepository) Create(ctx context.Context, donation *models.Donation) error {
	if donation.ID == "" {
		donation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if donation.CreatedAt.IsZero() {
		donation.CreatedAt = now
	}
	donation.UpdatedAt = now

	const query = `INSERT INTO donations (id, donor_id, hospital, blood_type, date, status, created_at, updated_at)
VALUES (:id, :donor_id, :hospital, :blood_type, :date, :status, :created_at, :updated_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, donation); err != nil {
		return fmt.Errorf("create donation: %w", err)
	}
	return nil
}

// FindByID returns a donation by identifier.
func (r *DonationRepository) FindByID(ctx context.Context, id string) (*models.Donation, error) {
	query := fmt.Sprintf(`SELECT %s FROM donations WHERE id = $1 LIMIT 1`, donationColumns)
	var donation models.Donation
	if err := r.db.GetContext(ctx, &donation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find donation by id: %w", err)
	}
	return &donation, nil
}

// ListByDonorYear returns every donation for the donor dated within the
// calendar year, regardless of status. Callers apply the policy predicate.
func (r *DonationRepository) ListByDonorYear(ctx context.Context, donorID string, year int) ([]models.Donation, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	query := fmt.Sprintf(`SELECT %s FROM donations WHERE donor_id = $1 AND date >= $2 AND date < $3 ORDER BY date ASC, id ASC`, donationColumns)
	var donations []models.Donation
	if err := r.db.SelectContext(ctx, &donations, query, donorID, start, end); err != nil {
		return nil, fmt.Errorf("list donations by donor year: %w", err)
	}
	return donations, nil
}

// ListApprovedByDonor returns the donor's approved donations ordered oldest
// first with id as a deterministic tie-break. The first row is the one a
// booking consumes.
func (r *DonationRepository) ListApprovedByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	query := fmt.Sprintf(`SELECT %s FROM donations WHERE donor_id = $1 AND status = $2 ORDER BY date ASC, id ASC`, donationColumns)
	var donations []models.Donation
	if err := r.db.SelectContext(ctx, &donations, query, donorID, models.DonationStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved donations: %w", err)
	}
	return donations, nil
}

// CountApprovedOrUsedInYear counts the donor's approved/used donations dated
// within the calendar year, excluding the given donation id when non-empty.
func (r *DonationRepository) CountApprovedOrUsedInYear(ctx context.Context, donorID string, year int, excludeID string) (int, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	query := `SELECT COUNT(*) FROM donations WHERE donor_id = $1 AND status IN ($2, $3) AND date >= $4 AND date < $5`
	args := []interface{}{donorID, models.DonationStatusApproved, models.DonationStatusUsed, start, end}
	if excludeID != "" {
		query += " AND id <> $6"
		args = append(args, excludeID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count approved or used donations: %w", err)
	}
	return count, nil
}

// UpdateStatus performs a conditional status transition. It reports whether a
// row actually changed, so callers can detect a lost race on the expected
// status.
func (r *DonationRepository) UpdateStatus(ctx context.Context, id string, from, to models.DonationStatus) (bool, error) {
	const query = `UPDATE donations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update donation status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update donation status rows: %w", err)
	}
	return rows > 0, nil
}

// List returns donations joined with donor info based on filters.
func (r *DonationRepository) List(ctx context.Context, filter models.DonationFilter) ([]models.DonationDetail, int, error) {
	baseQuery := `FROM donations d JOIN users u ON u.id = d.donor_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DonorID != "" {
		conditions = append(conditions, fmt.Sprintf("d.donor_id = $%d", len(args)+1))
		args = append(args, filter.DonorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("d.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Year > 0 {
		start := time.Date(filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		conditions = append(conditions, fmt.Sprintf("d.date >= $%d AND d.date < $%d", len(args)+1, len(args)+2))
		args = append(args, start, start.AddDate(1, 0, 0))
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"date":       "d.date",
		"status":     "d.status",
		"created_at": "d.created_at",
		"hospital":   "d.hospital",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "d.date"
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

	listQuery := fmt.Sprintf(`SELECT d.id, d.donor_id, d.hospital, d.blood_type, d.date, d.status, d.created_at, d.updated_at, u.full_name AS donor_name, u.email AS donor_email %s ORDER BY %s %s, d.id ASC LIMIT %d OFFSET %d`,
		baseQuery, sortColumn, sortOrder, pageSize, offset)

	var donations []models.DonationDetail
	if err := r.db.SelectContext(ctx, &donations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count donations: %w", err)
	}

	return donations, total, nil
}

// StatusCount aggregates donation totals per status.
type StatusCount struct {
	Status models.DonationStatus `db:"status"`
	Count  int                   `db:"count"`
}

// CountByStatus returns per-status donation totals.
func (r *DonationRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM donations GROUP BY status`
	var counts []StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count donations by status: %w", err)
	}
	return counts, nil
}

// HospitalCount aggregates donation totals per hospital name.
type HospitalCount struct {
	Hospital string `db:"hospital"`
	Count    int    `db:"count"`
}

// CountByHospital returns per-hospital donation totals.
func (r *DonationRepository) CountByHospital(ctx context.Context, limit int) ([]HospitalCount, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT hospital, COUNT(*) AS count FROM donations GROUP BY hospital ORDER BY count DESC, hospital ASC LIMIT $1`
	var counts []HospitalCount
	if err := r.db.SelectContext(ctx, &counts, query, limit); err != nil {
		return nil, fmt.Errorf("count donations by hospital: %w", err)
	}
	return counts, nil
}
