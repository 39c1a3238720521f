package models

import "time"

// AppointmentStatus represents the state of a booked appointment.
type AppointmentStatus string

// Appointments are immutable after creation in this scope.
const (
	AppointmentStatusBooked AppointmentStatus = "BOOKED"
)

// Appointment represents a donation appointment booked against one streak.
type Appointment struct {
	ID              string            `db:"id" json:"id"`
	DonorID         string            `db:"donor_id" json:"donor_id"`
	HospitalID      string            `db:"hospital_id" json:"hospital_id"`
	HospitalName    string            `db:"hospital_name" json:"hospital_name"`
	HospitalAddress string            `db:"hospital_address" json:"hospital_address"`
	Date            time.Time         `db:"date" json:"date"`
	Status          AppointmentStatus `db:"status" json:"status"`
	// DonationID records which approved donation the booking consumed.
	DonationID string    `db:"donation_id" json:"donation_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BookAppointmentRequest is the payload for booking an appointment.
type BookAppointmentRequest struct {
	HospitalID string    `json:"hospital_id" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
}

// AppointmentFilter provides filters for listing appointments.
type AppointmentFilter struct {
	DonorID   string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
