package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Draft is the user input for a new task, validated before it is sent.
type Draft struct {
	Goal        string `json:"goal" validate:"required,max=2000"`
	Description string `json:"description,omitempty" validate:"omitempty,max=10000"`
}

// ValidationError represents a single invalid draft field.
type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "task." + e.Field + ": " + e.Message
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateDraft checks a draft before it is sent to the backend.
// Leading and trailing whitespace is trimmed from the goal in place.
func ValidateDraft(d *Draft) error {
	d.Goal = strings.TrimSpace(d.Goal)
	d.Description = strings.TrimSpace(d.Description)

	err := draftValidator().Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation error: %w", err)
	}

	errs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		errs = append(errs, ValidationError{
			Field:   field,
			Tag:     fe.Tag(),
			Message: formatFieldError(fe),
		})
	}
	return errs
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", fe.Tag())
	}
}
