package project

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// UpdateType selects which part of the document an Update touches.
type UpdateType string

const (
	// UpdateStatus overwrites the project status.
	UpdateStatus UpdateType = "status"

	// UpdateMilestone sets the completion percentage of one milestone.
	UpdateMilestone UpdateType = "milestone"

	// UpdateGeneral overwrites title and description.
	UpdateGeneral UpdateType = "general"
)

// Update describes a non-monetary change to the document.
type Update struct {
	Type UpdateType `json:"type"`

	// Status is the new project status for UpdateStatus.
	Status string `json:"status,omitempty"`

	// MilestoneID and CompletionPercentage drive UpdateMilestone.
	MilestoneID          string `json:"milestoneId,omitempty"`
	CompletionPercentage uint8  `json:"completionPercentage,omitempty"`

	// Title and Description overwrite their document counterparts for
	// UpdateGeneral when non-empty.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Payment describes satoshis leaving the project budget, optionally
// settling a milestone.
type Payment struct {
	Amount      btcutil.Amount `json:"amount"`
	MilestoneID string         `json:"milestoneId,omitempty"`
}

// Change is one revision's worth of edits. All three parts are optional
// and independent; any combination may apply in a single revision.
type Change struct {
	Update    *Update
	Payment   *Payment
	Milestone *Milestone
}

// historyType names the change for the embedded history entry.
func (c *Change) historyType() string {
	if c.Payment != nil {
		return "payment"
	}

	return "update"
}

// ApplyUpdate derives the next revision of base. It is a pure transform:
// base is never mutated, the chain is not consulted, and the returned
// document's version is base's plus exactly one no matter how many parts
// of the change fired. previousCid is the content identifier base was
// loaded from; it becomes the backward link of the new revision's history
// entry.
func ApplyUpdate(base *Document, change Change, previousCid string,
	now time.Time) *Document {

	next := base.clone()

	if change.Payment != nil {
		applyPayment(next, change.Payment, now)
	}

	if change.Update != nil {
		applyFieldUpdate(next, change.Update, now)
	}

	if change.Milestone != nil {
		next.Milestones = append(next.Milestones, *change.Milestone)
	}

	next.UpdateHistory = append(next.UpdateHistory, HistoryEntry{
		Type:        change.historyType(),
		Update:      change.Update,
		Payment:     change.Payment,
		Timestamp:   now,
		PreviousCid: previousCid,
	})

	next.Version = base.Version + 1
	next.LastUpdated = now
	recomputeStats(next)

	return next
}

// applyPayment books the spend and settles the targeted milestone, if any.
func applyPayment(doc *Document, payment *Payment, now time.Time) {
	doc.Budget.Spent += payment.Amount

	if payment.MilestoneID == "" {
		return
	}

	for i := range doc.Milestones {
		if doc.Milestones[i].ID != payment.MilestoneID {
			continue
		}

		doc.Milestones[i].Status = MilestoneCompleted
		doc.Milestones[i].PaidAmount += payment.Amount
		doc.Milestones[i].LastUpdated = now
		return
	}
}

// applyFieldUpdate dispatches on the update type.
func applyFieldUpdate(doc *Document, update *Update, now time.Time) {
	switch update.Type {
	case UpdateStatus:
		doc.Status = update.Status

	case UpdateMilestone:
		for i := range doc.Milestones {
			if doc.Milestones[i].ID != update.MilestoneID {
				continue
			}

			doc.Milestones[i].CompletionPercentage =
				update.CompletionPercentage
			doc.Milestones[i].LastUpdated = now
			return
		}

	case UpdateGeneral:
		if update.Title != "" {
			doc.Title = update.Title
		}
		if update.Description != "" {
			doc.Description = update.Description
		}
	}
}

// recomputeStats rederives the aggregate milestone figures.
func recomputeStats(doc *Document) {
	stats := Stats{TotalMilestones: len(doc.Milestones)}

	var totalPct int
	for i := range doc.Milestones {
		if doc.Milestones[i].Status == MilestoneCompleted {
			stats.MilestonesCompleted++
		}
		totalPct += int(doc.Milestones[i].CompletionPercentage)
	}
	if stats.TotalMilestones > 0 {
		stats.CompletionPercentage =
			uint8(totalPct / stats.TotalMilestones)
	}

	doc.Stats = stats
}
