package model

import (
	"strings"
	"testing"
	"time"
)

// validWorkPackage returns a WorkPackage that passes all validation rules.
func validWorkPackage() WorkPackage {
	return WorkPackage{
		Subject:   "Implement login flow",
		ProjectID: 1,
		TypeID:    1,
		StatusID:  1,
		AuthorID:  1,
		DoneRatio: 20,
	}
}

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidateWorkPackage_Valid(t *testing.T) {
	wp := validWorkPackage()
	if err := ValidateWorkPackage(&wp); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestValidateWorkPackage_SubjectRequired(t *testing.T) {
	wp := validWorkPackage()
	wp.Subject = "   \t "
	errs := fieldErrors(t, ValidateWorkPackage(&wp))
	if !hasFieldError(errs, "subject") {
		t.Error("expected error on field 'subject'")
	}
}

func TestValidateWorkPackage_SubjectTooLong(t *testing.T) {
	wp := validWorkPackage()
	wp.Subject = strings.Repeat("x", 256)
	errs := fieldErrors(t, ValidateWorkPackage(&wp))
	if !hasFieldError(errs, "subject") {
		t.Error("expected error on field 'subject'")
	}
}

func TestValidateWorkPackage_Table(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)
	negative := -1.5

	tests := []struct {
		name   string
		mutate func(*WorkPackage)
		field  string
	}{
		{"missing project", func(wp *WorkPackage) { wp.ProjectID = 0 }, "project"},
		{"missing type", func(wp *WorkPackage) { wp.TypeID = 0 }, "type"},
		{"missing status", func(wp *WorkPackage) { wp.StatusID = 0 }, "status"},
		{"missing author", func(wp *WorkPackage) { wp.AuthorID = 0 }, "author"},
		{"done ratio above 100", func(wp *WorkPackage) { wp.DoneRatio = 101 }, "percentageDone"},
		{"done ratio negative", func(wp *WorkPackage) { wp.DoneRatio = -1 }, "percentageDone"},
		{"negative estimate", func(wp *WorkPackage) { wp.EstimatedHours = &negative }, "estimatedTime"},
		{"due before start", func(wp *WorkPackage) { wp.StartDate = &start; wp.DueDate = &before }, "dueDate"},
		{"self parent", func(wp *WorkPackage) { wp.ID = 7; id := int64(7); wp.ParentID = &id }, "parent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wp := validWorkPackage()
			tt.mutate(&wp)
			errs := fieldErrors(t, ValidateWorkPackage(&wp))
			if !hasFieldError(errs, tt.field) {
				t.Errorf("expected error on %q, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateWorkPackage_MultipleErrors(t *testing.T) {
	wp := WorkPackage{DoneRatio: 300}
	errs := fieldErrors(t, ValidateWorkPackage(&wp))
	if len(errs) != 6 {
		t.Fatalf("expected 6 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("subject", "is required")
	ve.Add("percentageDone", "must be between 0 and 100, got %d", 120)
	want := "validation failed: subject: is required; percentageDone: must be between 0 and 100, got 120"
	if got := ve.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError_MergeAndErr(t *testing.T) {
	var ve ValidationError
	if ve.Err() != nil {
		t.Fatal("empty ValidationError should yield nil Err()")
	}
	ve.Merge(nil)
	ve.Merge(&ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}})
	if len(ve.Errors) != 1 || ve.Err() == nil {
		t.Fatalf("expected one merged error, got %v", ve.Errors)
	}
}

func TestValidateProject(t *testing.T) {
	tests := []struct {
		name    string
		project Project
		field   string
	}{
		{"valid", Project{Name: "Website", Identifier: "website"}, ""},
		{"missing name", Project{Identifier: "website"}, "name"},
		{"missing identifier", Project{Name: "Website"}, "identifier"},
		{"uppercase identifier", Project{Name: "Website", Identifier: "Website"}, "identifier"},
		{"identifier with slash", Project{Name: "Website", Identifier: "web/site"}, "identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProject(&tt.project)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !hasFieldError(fieldErrors(t, err), tt.field) {
				t.Errorf("expected error on %q", tt.field)
			}
		})
	}
}

func TestUserName(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Login: "jdoe"}, "jdoe"},
		{User{Login: "jdoe", Firstname: "Jo"}, "Jo"},
		{User{Login: "jdoe", Lastname: "Doe"}, "Doe"},
		{User{Login: "jdoe", Firstname: "Jo", Lastname: "Doe"}, "Jo Doe"},
	}
	for _, tt := range tests {
		if got := tt.user.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestValidationError_NilReceiver(t *testing.T) {
	var ve *ValidationError
	if ve.HasErrors() {
		t.Error("nil ValidationError should report no errors")
	}
	if err := ve.Err(); err != nil {
		t.Errorf("nil ValidationError.Err() = %v, want nil", err)
	}
}
