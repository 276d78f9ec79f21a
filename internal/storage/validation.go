package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sievefin/sift/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidTemplate = errors.New("invalid template")
	ErrInvalidResult   = errors.New("invalid extraction result")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTemplate validates a template before persistence.
func validateTemplate(tmpl *model.Template) error {
	if tmpl == nil {
		return fmt.Errorf("%w: template", ErrNilParameter)
	}
	if strings.TrimSpace(tmpl.Institution) == "" {
		return fmt.Errorf("%w: missing institution", ErrInvalidTemplate)
	}
	if len(tmpl.Rules) == 0 {
		return fmt.Errorf("%w: no field rules", ErrInvalidTemplate)
	}
	if tmpl.Confidence < 0 || tmpl.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidTemplate)
	}
	return nil
}

// validateResult validates an extraction result before persistence.
func validateResult(result *model.ExtractionResult) error {
	if result == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}
	if result.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidResult)
	}
	if result.MessageID == "" {
		return fmt.Errorf("%w: missing message ID", ErrInvalidResult)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidResult)
	}
	return nil
}
