package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"hradmin/internal/domain/apperr"
)

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data. Failures are validation errors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("invalid JSON body", apperr.FieldIssue{Field: "body", Reason: "is required"})
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body", apperr.FieldIssue{Field: "body", Reason: decodeReason(err)})
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid JSON body", apperr.FieldIssue{Field: "body", Reason: "must contain a single JSON object"})
	}
	return nil
}

func decodeReason(err error) string {
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "is required"
	case errors.As(err, &maxErr):
		return "is too large"
	case errors.As(err, &typeErr):
		return typeErr.Field + " has the wrong type"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "has " + strings.TrimPrefix(err.Error(), "json: ")
	}
	return "is not valid JSON"
}

// Validator collects field issues for hand-checked inputs such as query
// parameters.
type Validator struct {
	issues []apperr.FieldIssue
}

func NewValidator() *Validator {
	return &Validator{issues: make([]apperr.FieldIssue, 0, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, apperr.FieldIssue{Field: strings.TrimSpace(field), Reason: reason})
}

func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "is required")
	}
}

// Err returns the collected issues as a validation error, or nil.
func (v *Validator) Err(message string) error {
	if v == nil || len(v.issues) == 0 {
		return nil
	}
	out := make([]apperr.FieldIssue, len(v.issues))
	copy(out, v.issues)
	return apperr.Validation(message, out...)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted.
func DecodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return DecodeJSON(r, dst)
}
