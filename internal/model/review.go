package model

import "time"

// ReviewStatus tracks the lifecycle of a review-queue item.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending   ReviewStatus = "pending"
	ReviewApproved  ReviewStatus = "approved"
	ReviewCorrected ReviewStatus = "corrected"
	ReviewRejected  ReviewStatus = "rejected"
)

// ReviewItem is a durable entry in the human-review queue. Priority runs
// 1 (urgent) to 10 (low).
type ReviewItem struct {
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResultID   string
	Status     ReviewStatus
	Failures   []string
	ID         int64
	Priority   int
}

// Correction is a human-supplied field-level override tied to one result and
// the template in use at the time. Corrections are learning input only and
// are never deleted.
type Correction struct {
	CreatedAt         time.Time
	UserID            string
	ResultID          string
	Field             string
	OldValue          string
	NewValue          string
	TemplateID        *int64
	ID                int64
	AppliedToTemplate bool
}

// Institution is a known financial sender: its notification addresses,
// domains, and content signatures.
type Institution struct {
	CreatedAt  time.Time
	Name       string
	Country    string
	Domains    []string
	Senders    []string
	Signatures []string // fixed phrases known to appear in this sender's mail
	ID         int64
	IsActive   bool
}
