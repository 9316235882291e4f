package requests

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeLeave              Type = "leave"
	TypeAsset              Type = "asset"
	TypeLoan               Type = "loan"
	TypePunchCorrection    Type = "punch_correction"
	TypeClearance          Type = "clearance"
	TypeResignation        Type = "resignation"
	TypeContractNonRenewal Type = "contract_non_renewal"
	TypeAuthorization      Type = "authorization"
	TypeLetter             Type = "letter"
	TypePermission         Type = "permission"
)

var Types = []Type{
	TypeLeave,
	TypeAsset,
	TypeLoan,
	TypePunchCorrection,
	TypeClearance,
	TypeResignation,
	TypeContractNonRenewal,
	TypeAuthorization,
	TypeLetter,
	TypePermission,
}

func ParseType(raw string) (Type, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, t := range Types {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown request type %q", raw)
}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPendingManager Status = "pending_manager"
	StatusPendingGM      Status = "pending_gm"
	StatusPendingHR      Status = "pending_hr"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusCancelled      Status = "cancelled"
)

var Statuses = []Status{
	StatusPendingManager,
	StatusPendingGM,
	StatusPendingHR,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
}

func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range Statuses {
		if string(s) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", raw)
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

func (s Status) Pending() bool {
	return s == StatusPendingManager || s == StatusPendingGM || s == StatusPendingHR
}

// Transition is one entry of a request's own status history.
type Transition struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	ActorID string    `json:"actorId"`
	At      time.Time `json:"at"`
	Note    string    `json:"note,omitempty"`
}

type Request struct {
	ID         string
	UserID     string
	Type       Type
	Status     Status
	Details    Details
	CreatedAt  time.Time
	ApproverID string
	UpdatedAt  time.Time
	History    []Transition
}

type requestJSON struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       Type            `json:"type"`
	Status     Status          `json:"status"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"createdAt"`
	ApproverID string          `json:"approverId,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	History    []Transition    `json:"history"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, err
	}
	history := r.History
	if history == nil {
		history = []Transition{}
	}
	return json.Marshal(requestJSON{
		ID:         r.ID,
		UserID:     r.UserID,
		Type:       r.Type,
		Status:     r.Status,
		Details:    details,
		CreatedAt:  r.CreatedAt,
		ApproverID: r.ApproverID,
		UpdatedAt:  r.UpdatedAt,
		History:    history,
	})
}

// UnmarshalJSON decodes details into the variant named by type.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("unknown request type %q", raw.Type)
	}
	if !raw.Status.Valid() {
		return fmt.Errorf("unknown request status %q", raw.Status)
	}
	details, err := DecodeDetails(raw.Type, raw.Details)
	if err != nil {
		return err
	}
	*r = Request{
		ID:         raw.ID,
		UserID:     raw.UserID,
		Type:       raw.Type,
		Status:     raw.Status,
		Details:    details,
		CreatedAt:  raw.CreatedAt,
		ApproverID: raw.ApproverID,
		UpdatedAt:  raw.UpdatedAt,
		History:    raw.History,
	}
	return nil
}

// Clone returns a copy whose history can be appended to independently.
func (r Request) Clone() Request {
	out := r
	out.History = append([]Transition(nil), r.History...)
	return out
}
