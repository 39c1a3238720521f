package models

import "time"

// HospitalDonationCount pairs a hospital name with its donation total.
type HospitalDonationCount struct {
	Hospital string `json:"hospital"`
	Count    int    `json:"count"`
}

// DonorDashboard summarises a donor's standing for the mobile home screen.
type DonorDashboard struct {
	Streaks           int    `json:"streaks"`
	DonationsThisYear int    `json:"donations_this_year"`
	AnnualLimit       int    `json:"annual_limit"`
	LimitReached      bool   `json:"limit_reached"`
	// NextEligibleIn is the human readable countdown to January 1st of the
	// next year. Empty while the donor is still under the limit.
	NextEligibleIn       string        `json:"next_eligible_in,omitempty"`
	PendingDonations     int           `json:"pending_donations"`
	UpcomingAppointments []Appointment `json:"upcoming_appointments"`
	GeneratedAt          time.Time     `json:"generated_at"`
}

// AdminDashboard summarises review workload and donation activity.
type AdminDashboard struct {
	PendingReviews    int                     `json:"pending_reviews"`
	DonationsByStatus map[string]int          `json:"donations_by_status"`
	TopHospitals      []HospitalDonationCount `json:"top_hospitals"`
	TotalDonors       int                     `json:"total_donors"`
	GeneratedAt       time.Time               `json:"generated_at"`
}
