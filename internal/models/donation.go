package models

import "time"

// DonationStatus represents the lifecycle stage of a donation record.
type DonationStatus string

// Donation lifecycle states. REJECTED and USED are terminal.
const (
	DonationStatusPending  DonationStatus = "PENDING"
	DonationStatusApproved DonationStatus = "APPROVED"
	DonationStatusRejected DonationStatus = "REJECTED"
	DonationStatusUsed     DonationStatus = "USED"
)

// ValidTransition reports whether a donation may move from one status to another.
func ValidTransition(from, to DonationStatus) bool {
	switch from {
	case DonationStatusPending:
		return to == DonationStatusApproved || to == DonationStatusRejected
	case DonationStatusApproved:
		return to == DonationStatusUsed
	default:
		return false
	}
}

// BloodTypes is the recognised set of full blood type values.
var BloodTypes = map[string]struct{}{
	"A+": {}, "A-": {},
	"B+": {}, "B-": {},
	"AB+": {}, "AB-": {},
	"O+": {}, "O-": {},
}

// LegacyBloodTypes are Rh-less values still present in historical records.
// They are accepted on submission for backward compatibility.
var LegacyBloodTypes = map[string]struct{}{
	"A": {}, "B": {},
}

// KnownBloodType reports whether the value is accepted, and whether it is a
// legacy Rh-less value.
func KnownBloodType(value string) (ok bool, legacy bool) {
	if _, found := BloodTypes[value]; found {
		return true, false
	}
	if _, found := LegacyBloodTypes[value]; found {
		return true, true
	}
	return false, false
}

// Donation represents a blood donation submitted for admin review.
type Donation struct {
	ID        string         `db:"id" json:"id"`
	DonorID   string         `db:"donor_id" json:"donor_id"`
	Hospital  string         `db:"hospital" json:"hospital"`
	BloodType string         `db:"blood_type" json:"blood_type"`
	Date      time.Time      `db:"date" json:"date"`
	Status    DonationStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// DonationDetail enriches Donation with donor info for admin listings.
type DonationDetail struct {
	Donation
	DonorName  string `db:"donor_name" json:"donor_name"`
	DonorEmail string `db:"donor_email" json:"donor_email"`
}

// SubmitDonationRequest is the payload for a donor submitting a donation.
type SubmitDonationRequest struct {
	Hospital  string    `json:"hospital" validate:"required,min=2,max=200"`
	BloodType string    `json:"blood_type" validate:"required"`
	Date      time.Time `json:"date" validate:"required"`
}

// StreakSummary reports a donor's booking eligibility.
type StreakSummary struct {
	Available int        `json:"available"`
	Donations []Donation `json:"donations"`
}

// MilestoneNotification is the payload for the donation milestone job.
type MilestoneNotification struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Donations int    `json:"donations"`
}

// DonationFilter provides filters for listing donations.
type DonationFilter struct {
	DonorID   string
	Status    DonationStatus
	Year      int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
