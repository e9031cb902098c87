// Package project holds the versioned project document, the pure state
// aggregator that produces each new revision, and the manager that wires
// the aggregator to the content store and the transaction builder.
//
// Documents are stored as JSON blobs in the content store. Every published
// revision increments the version counter by exactly one and records the
// content identifier it was derived from, forming a backward-linked chain
// that mirrors the on-chain audit records.
package project

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// MilestoneStatus tracks the life of a single milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// Milestone is a budgeted, dated unit of work within a project.
type Milestone struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Expenditure          btcutil.Amount  `json:"expenditure"`
	StartDate            time.Time       `json:"startDate"`
	EndDate              time.Time       `json:"endDate"`
	Status               MilestoneStatus `json:"status"`
	CompletionPercentage uint8           `json:"completionPercentage"`

	// PaidAmount accumulates the satoshis paid out against this
	// milestone.
	PaidAmount btcutil.Amount `json:"paidAmount,omitempty"`

	// LastUpdated is refreshed whenever a progress update touches the
	// milestone.
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// Budget tracks project funds in satoshis.
type Budget struct {
	Total     btcutil.Amount `json:"total"`
	Allocated btcutil.Amount `json:"allocated"`
	Spent     btcutil.Amount `json:"spent"`
}

// Location places the project geographically.
type Location struct {
	City  string `json:"city"`
	State string `json:"state"`
	Area  string `json:"area"`
}

// Timeline frames the project in time.
type Timeline struct {
	StartDate       time.Time `json:"startDate"`
	ExpectedEndDate time.Time `json:"expectedEndDate"`
	CurrentPhase    string    `json:"currentPhase"`
}

// Stats is derived milestone progress, recomputed on every revision.
type Stats struct {
	CompletionPercentage uint8 `json:"completionPercentage"`
	MilestonesCompleted  int   `json:"milestonesCompleted"`
	TotalMilestones      int   `json:"totalMilestones"`
}

// Contractor identifies the paid counterparty.
type Contractor struct {
	Name string `json:"name"`

	// Address is the counterparty's chain address, the destination of
	// all milestone payments.
	Address string `json:"address"`
}

// HistoryEntry records one applied change within the document itself,
// backward-linking to the content identifier the revision superseded.
type HistoryEntry struct {
	Type        string    `json:"type"`
	Update      *Update   `json:"update,omitempty"`
	Payment     *Payment  `json:"payment,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	PreviousCid string    `json:"previousCid"`
}

// Document is the full versioned project state.
type Document struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Department    string         `json:"department"`
	Category      string         `json:"category"`
	Location      Location       `json:"location"`
	Budget        Budget         `json:"budget"`
	Timeline      Timeline       `json:"timeline"`
	Milestones    []Milestone    `json:"milestones"`
	Stats         Stats          `json:"stats"`
	Contractor    Contractor     `json:"contractor"`
	Status        string         `json:"status"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	UpdateHistory []HistoryEntry `json:"updateHistory"`
	Version       uint32         `json:"version"`
}

// PreviousCid returns the content identifier the latest revision was
// derived from, or empty for a never-updated document.
func (d *Document) PreviousCid() string {
	if len(d.UpdateHistory) == 0 {
		return ""
	}

	return d.UpdateHistory[len(d.UpdateHistory)-1].PreviousCid
}

// clone returns a deep copy of the document; the slices are the only
// reference-typed fields.
func (d *Document) clone() *Document {
	next := *d

	next.Milestones = make([]Milestone, len(d.Milestones))
	copy(next.Milestones, d.Milestones)

	next.UpdateHistory = make([]HistoryEntry, len(d.UpdateHistory))
	copy(next.UpdateHistory, d.UpdateHistory)

	return &next
}
