package domain

import "time"

type ReportID string

type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportClosed     ReportStatus = "closed"
)

// Report is the slice of a symptom report the relay needs: who filed it,
// what the classifier said and where.
type Report struct {
	ID           ReportID     `json:"id"`
	FarmerID     UserID       `json:"farmer_id"`
	DiseaseLabel string       `json:"disease_label"`
	Status       ReportStatus `json:"status"`
	Location     *Point       `json:"location,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
