package models

import "time"

// TaskStatus is the lifecycle state of a quest.
type TaskStatus string

// Quest status enums.
const (
	TaskStatusOpen                TaskStatus = "open"
	TaskStatusAssigned            TaskStatus = "assigned"
	TaskStatusPendingVerification TaskStatus = "pending_verification"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusCancelled           TaskStatus = "cancelled"
)

// Rarity is the cosmetic reward tier of a quest.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Feedback struct {
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a quest posted by a requester. Optional fields are pointers so an
// unset assignee, completion time or feedback is explicit.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Price        Cents      `json:"price"`
	Location     Location   `json:"location"`
	CreatedAt    time.Time  `json:"created_at"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Urgent       bool       `json:"is_urgent"`
	Complexity   int        `json:"complexity,omitempty"`
	TimeRequired int        `json:"time_required,omitempty"`
	Points       int        `json:"points"`
	Rarity       Rarity     `json:"rarity"`
	Images       []string   `json:"images,omitempty"`
	// SubmissionCount counts completion submissions; pending earnings are
	// staged only on the first.
	SubmissionCount int        `json:"submission_count"`
	Feedback        *Feedback  `json:"feedback,omitempty"`
	RequesterID     string     `json:"requester_id"`
	AssigneeID      *string    `json:"assignee_id,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          TaskStatus `json:"status"`
	Version         int64      `json:"version"`
}

// Clone returns a deep copy so callers can never mutate a stored record.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	if t.Images != nil {
		cp.Images = append([]string(nil), t.Images...)
	}
	if t.Feedback != nil {
		f := *t.Feedback
		cp.Feedback = &f
	}
	if t.AssigneeID != nil {
		a := *t.AssigneeID
		cp.AssigneeID = &a
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return &cp
}

// TaskPatch carries the fields of a partial update. Nil fields are left as is.
type TaskPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Price        *Cents     `json:"price,omitempty"`
	Location     *Location  `json:"location,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Urgent       *bool      `json:"is_urgent,omitempty"`
	Complexity   *int       `json:"complexity,omitempty"`
	TimeRequired *int       `json:"time_required,omitempty"`
	Images       []string   `json:"images,omitempty"`
}
