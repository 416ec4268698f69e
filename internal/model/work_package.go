package model

import "time"

// WorkPackage is the unit of tracked work inside a project.
type WorkPackage struct {
	ID             int64            `json:"id"`
	ProjectID      int64            `json:"project_id"`
	Subject        string           `json:"subject"`
	Description    string           `json:"description,omitempty"`
	TypeID         int64            `json:"type_id"`
	StatusID       int64            `json:"status_id"`
	PriorityID     *int64           `json:"priority_id,omitempty"`
	AuthorID       int64            `json:"author_id"`
	AssignedToID   *int64           `json:"assigned_to_id,omitempty"`
	ResponsibleID  *int64           `json:"responsible_id,omitempty"`
	CategoryID     *int64           `json:"category_id,omitempty"`
	VersionID      *int64           `json:"version_id,omitempty"`
	ParentID       *int64           `json:"parent_id,omitempty"`
	StartDate      *time.Time       `json:"start_date,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
	EstimatedHours *float64         `json:"estimated_hours,omitempty"`
	DoneRatio      int              `json:"done_ratio"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CustomValues   map[int64]string `json:"custom_values,omitempty"`
}

// Status is a workflow state. Closed statuses back the "c" status filter.
type Status struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsClosed bool   `json:"is_closed"`
	Position int    `json:"position"`
}
