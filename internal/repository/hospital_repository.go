package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lifedrop/lifedrop-api/internal/models"
)

// HospitalRepository reads hospital reference data.
type HospitalRepository struct {
	db *sqlx.DB
}

// NewHospitalRepository creates a new instance of HospitalRepository.
func NewHospitalRepository(db *sqlx.DB) *HospitalRepository {
	return &HospitalRepository{db: db}
}

// List returns all hospitals ordered by name.
func (r *HospitalRepository) List(ctx context.Context) ([]models.Hospital, error) {
	const query = `SELECT id, name, address, created_at FROM hospitals ORDER BY name ASC`
	var hospitals []models.Hospital
	if err := r.db.SelectContext(ctx, &hospitals, query); err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	return hospitals, nil
}

// FindByID returns a hospital by identifier.
func (r *HospitalRepository) FindByID(ctx context.Context, id string) (*models.Hospital, error) {
	const query = `SELECT id, name, address, created_at FROM hospitals WHERE id = $1 LIMIT 1`
	var hospital models.Hospital
	if err := r.db.GetContext(ctx, &hospital, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find hospital by id: %w", err)
	}
	return &hospital, nil
}
