package requests

import (
	"bytes"
	"encoding/json"
	"time"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/platform/validation"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Details is the payload of a request. Each Type has exactly one variant.
type Details interface {
	RequestType() Type
	sealed()
}

type LeaveDetails struct {
	LeaveType string `json:"leaveType" validate:"required,oneof=annual sick unpaid emergency maternity paternity hajj other"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason,omitempty" validate:"max=1000"`
}

type AssetDetails struct {
	AssetName string `json:"assetName" validate:"required,max=200"`
	Category  string `json:"category,omitempty" validate:"max=100"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=100"`
	Reason    string `json:"reason" validate:"required,max=1000"`
}

type LoanDetails struct {
	Amount       float64 `json:"amount" validate:"gt=0"`
	Installments int     `json:"installments" validate:"gte=1,lte=120"`
	Reason       string  `json:"reason" validate:"required,max=1000"`
}

type PunchCorrectionDetails struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	PunchIn  string `json:"punchIn,omitempty" validate:"required_without=PunchOut,omitempty,datetime=15:04"`
	PunchOut string `json:"punchOut,omitempty" validate:"required_without=PunchIn,omitempty,datetime=15:04"`
	Reason   string `json:"reason" validate:"required,max=1000"`
}

type ClearanceDetails struct {
	LastWorkingDay string `json:"lastWorkingDay" validate:"required,datetime=2006-01-02"`
	Reason         string `json:"reason,omitempty" validate:"max=1000"`
}

type ResignationDetails struct {
	LastWorkingDay string `json:"lastWorkingDay" validate:"required,datetime=2006-01-02"`
	NoticeDays     int    `json:"noticeDays" validate:"gte=0,lte=365"`
	Reason         string `json:"reason" validate:"required,max=2000"`
}

type ContractNonRenewalDetails struct {
	ContractEndDate string `json:"contractEndDate" validate:"required,datetime=2006-01-02"`
	Reason          string `json:"reason" validate:"required,max=2000"`
}

type AuthorizationDetails struct {
	Subject     string `json:"subject" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

type LetterDetails struct {
	LetterType string `json:"letterType" validate:"required,oneof=salary_certificate employment_verification experience no_objection other"`
	Addressee  string `json:"addressee,omitempty" validate:"max=200"`
	Purpose    string `json:"purpose,omitempty" validate:"max=1000"`
}

type PermissionDetails struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	FromTime string `json:"fromTime" validate:"required,datetime=15:04"`
	ToTime   string `json:"toTime" validate:"required,datetime=15:04"`
	Reason   string `json:"reason,omitempty" validate:"max=1000"`
}

func (LeaveDetails) RequestType() Type              { return TypeLeave }
func (AssetDetails) RequestType() Type              { return TypeAsset }
func (LoanDetails) RequestType() Type               { return TypeLoan }
func (PunchCorrectionDetails) RequestType() Type    { return TypePunchCorrection }
func (ClearanceDetails) RequestType() Type          { return TypeClearance }
func (ResignationDetails) RequestType() Type        { return TypeResignation }
func (ContractNonRenewalDetails) RequestType() Type { return TypeContractNonRenewal }
func (AuthorizationDetails) RequestType() Type      { return TypeAuthorization }
func (LetterDetails) RequestType() Type             { return TypeLetter }
func (PermissionDetails) RequestType() Type         { return TypePermission }

func (LeaveDetails) sealed()              {}
func (AssetDetails) sealed()              {}
func (LoanDetails) sealed()               {}
func (PunchCorrectionDetails) sealed()    {}
func (ClearanceDetails) sealed()          {}
func (ResignationDetails) sealed()        {}
func (ContractNonRenewalDetails) sealed() {}
func (AuthorizationDetails) sealed()      {}
func (LetterDetails) sealed()             {}
func (PermissionDetails) sealed()         {}

// DecodeDetails decodes raw into the variant for t. Unknown fields are
// rejected; field rules are left to ValidateDetails.
func DecodeDetails(t Type, raw json.RawMessage) (Details, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, apperr.Validation("invalid request details", apperr.FieldIssue{Field: "details", Reason: "is required"})
	}

	switch t {
	case TypeLeave:
		return decodeInto[LeaveDetails](trimmed)
	case TypeAsset:
		return decodeInto[AssetDetails](trimmed)
	case TypeLoan:
		return decodeInto[LoanDetails](trimmed)
	case TypePunchCorrection:
		return decodeInto[PunchCorrectionDetails](trimmed)
	case TypeClearance:
		return decodeInto[ClearanceDetails](trimmed)
	case TypeResignation:
		return decodeInto[ResignationDetails](trimmed)
	case TypeContractNonRenewal:
		return decodeInto[ContractNonRenewalDetails](trimmed)
	case TypeAuthorization:
		return decodeInto[AuthorizationDetails](trimmed)
	case TypeLetter:
		return decodeInto[LetterDetails](trimmed)
	case TypePermission:
		return decodeInto[PermissionDetails](trimmed)
	}
	return nil, apperr.Validation("invalid request", apperr.FieldIssue{Field: "type", Reason: "unknown request type " + string(t)})
}

func decodeInto[T Details](raw []byte) (Details, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Validation("invalid request details", apperr.FieldIssue{Field: "details", Reason: err.Error()})
	}
	return v, nil
}

// ValidateDetails checks that d is the variant for t and that its fields
// satisfy the variant's rules.
func ValidateDetails(t Type, d Details) error {
	if !t.Valid() {
		return apperr.Validation("invalid request", apperr.FieldIssue{Field: "type", Reason: "unknown request type " + string(t)})
	}
	if d == nil {
		return apperr.Validation("invalid request details", apperr.FieldIssue{Field: "details", Reason: "is required"})
	}
	if d.RequestType() != t {
		return apperr.Validation("invalid request details", apperr.FieldIssue{
			Field:  "details",
			Reason: "payload is for " + string(d.RequestType()) + ", not " + string(t),
		})
	}
	if err := validation.Struct(d, "invalid request details"); err != nil {
		return err
	}
	if issues := crossCheck(d); len(issues) > 0 {
		return apperr.Validation("invalid request details", issues...)
	}
	return nil
}

// crossCheck applies the rules that span more than one field.
func crossCheck(d Details) []apperr.FieldIssue {
	switch v := d.(type) {
	case LeaveDetails:
		if !notBefore(dateLayout, v.StartDate, v.EndDate) {
			return []apperr.FieldIssue{{Field: "endDate", Reason: "must not be before startDate"}}
		}
	case PunchCorrectionDetails:
		if v.PunchIn != "" && v.PunchOut != "" && !notBefore(clockLayout, v.PunchIn, v.PunchOut) {
			return []apperr.FieldIssue{{Field: "punchOut", Reason: "must not be before punchIn"}}
		}
	case PermissionDetails:
		from, errFrom := time.Parse(clockLayout, v.FromTime)
		to, errTo := time.Parse(clockLayout, v.ToTime)
		if errFrom == nil && errTo == nil && !to.After(from) {
			return []apperr.FieldIssue{{Field: "toTime", Reason: "must be after fromTime"}}
		}
	}
	return nil
}

func notBefore(layout, start, end string) bool {
	s, errS := time.Parse(layout, start)
	e, errE := time.Parse(layout, end)
	if errS != nil || errE != nil {
		return true
	}
	return !e.Before(s)
}
