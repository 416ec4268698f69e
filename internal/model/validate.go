package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends the field errors of other, if any.
func (e *ValidationError) Merge(other *ValidationError) {
	if other != nil {
		e.Errors = append(e.Errors, other.Errors...)
	}
}

// Err returns e when it carries errors and nil otherwise. It is safe to
// call on a nil receiver.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateWorkPackage checks a WorkPackage for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the work package is valid.
func ValidateWorkPackage(wp *WorkPackage) error {
	var ve ValidationError

	subject := strings.TrimSpace(wp.Subject)
	if subject == "" {
		ve.Add("subject", "is required")
	} else if len([]rune(subject)) > 255 {
		ve.Add("subject", "must be 255 characters or fewer")
	}

	if wp.ProjectID <= 0 {
		ve.Add("project", "is required")
	}
	if wp.TypeID <= 0 {
		ve.Add("type", "is required")
	}
	if wp.StatusID <= 0 {
		ve.Add("status", "is required")
	}
	if wp.AuthorID <= 0 {
		ve.Add("author", "is required")
	}

	if wp.DoneRatio < 0 || wp.DoneRatio > 100 {
		ve.Add("percentageDone", "must be between 0 and 100, got %d", wp.DoneRatio)
	}

	if wp.EstimatedHours != nil && *wp.EstimatedHours < 0 {
		ve.Add("estimatedTime", "must not be negative")
	}

	if wp.StartDate != nil && wp.DueDate != nil && wp.DueDate.Before(*wp.StartDate) {
		ve.Add("dueDate", "must be on or after the start date")
	}

	if wp.ParentID != nil && wp.ID != 0 && *wp.ParentID == wp.ID {
		ve.Add("parent", "cannot be the work package itself")
	}

	return ve.Err()
}

// ValidateProject checks a Project for constraint violations.
func ValidateProject(p *Project) error {
	var ve ValidationError

	if strings.TrimSpace(p.Name) == "" {
		ve.Add("name", "is required")
	}
	id := strings.TrimSpace(p.Identifier)
	switch {
	case id == "":
		ve.Add("identifier", "is required")
	case len(id) > 100:
		ve.Add("identifier", "must be 100 characters or fewer")
	case strings.ToLower(id) != id || strings.ContainsAny(id, " /?#"):
		ve.Add("identifier", "must be lowercase without spaces or URL separators")
	}
	if p.ParentID != nil && p.ID != 0 && *p.ParentID == p.ID {
		ve.Add("parent", "cannot be the project itself")
	}

	return ve.Err()
}
