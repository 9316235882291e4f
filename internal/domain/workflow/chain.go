// Package workflow advances requests through the approval chain.
package workflow

import (
	"fmt"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/requests"
)

// stage declares who may act on a request while it sits in a pending status.
// A role must be listed and hold the permission.
type stage struct {
	status     requests.Status
	next       requests.Status
	roles      []auth.Role
	permission auth.Permission
}

// Every request type shares this chain.
var chain = []stage{
	{
		status:     requests.StatusPendingManager,
		next:       requests.StatusPendingGM,
		roles:      []auth.Role{auth.RoleDepartmentManager, auth.RoleOwner},
		permission: auth.PermApproveRequestsInitial,
	},
	{
		status:     requests.StatusPendingGM,
		next:       requests.StatusPendingHR,
		roles:      []auth.Role{auth.RoleOwner},
		permission: auth.PermApproveRequestsFinal,
	},
	{
		status:     requests.StatusPendingHR,
		next:       requests.StatusApproved,
		roles:      []auth.Role{auth.RoleAdmin},
		permission: auth.PermApproveRequestsInitial,
	},
}

func stageFor(status requests.Status) (stage, bool) {
	for _, s := range chain {
		if s.status == status {
			return s, true
		}
	}
	return stage{}, false
}

// Chain returns the ordered statuses a request passes through on approval.
func Chain() []requests.Status {
	out := make([]requests.Status, 0, len(chain)+1)
	for _, s := range chain {
		out = append(out, s.status)
	}
	return append(out, requests.StatusApproved)
}

// NextStatus returns the status an approval moves current to.
func NextStatus(current requests.Status) (requests.Status, bool) {
	s, ok := stageFor(current)
	if !ok {
		return "", false
	}
	return s.next, true
}

// legalSuccessor reports whether an approver may move a request from
// current to next. Cancellation is not an approver action.
func legalSuccessor(current, next requests.Status) bool {
	s, ok := stageFor(current)
	if !ok {
		return false
	}
	return next == s.next || next == requests.StatusRejected
}

// CanApprove reports whether actor may act on req in its current status.
// Requesters can never act on their own requests.
func CanApprove(actor auth.Actor, req requests.Request) bool {
	if actor.EmployeeID == req.UserID {
		return false
	}
	s, ok := stageFor(req.Status)
	if !ok {
		return false
	}
	if !auth.HasPermission(actor.Permissions(), s.permission) {
		return false
	}
	for _, role := range s.roles {
		if actor.Role == role {
			return true
		}
	}
	return false
}

// VerifyHistory replays req.History from the first stage and reports the
// first step the engine would have refused. The replay must end at
// req.Status, and req.ApproverID must name the last approver or rejecter.
// actors resolves the employees named in the history.
func VerifyHistory(req requests.Request, actors map[string]auth.Actor) error {
	current := requests.StatusPendingManager
	approver := ""
	for i, t := range req.History {
		if !current.Pending() {
			return fmt.Errorf("history[%d]: request was already %s", i, current)
		}
		if t.From != current {
			return fmt.Errorf("history[%d]: starts from %s, expected %s", i, t.From, current)
		}
		if t.To == requests.StatusCancelled {
			if t.ActorID != req.UserID {
				return fmt.Errorf("history[%d]: only the requester can cancel", i)
			}
			current = t.To
			continue
		}
		if !legalSuccessor(current, t.To) {
			return fmt.Errorf("history[%d]: cannot move from %s to %s", i, current, t.To)
		}
		actor, ok := actors[t.ActorID]
		if !ok {
			return fmt.Errorf("history[%d]: unknown actor %q", i, t.ActorID)
		}
		if !CanApprove(actor, requests.Request{UserID: req.UserID, Status: current}) {
			return fmt.Errorf("history[%d]: %s may not act on a request in %s", i, t.ActorID, current)
		}
		approver = t.ActorID
		current = t.To
	}
	if current != req.Status {
		return fmt.Errorf("history ends at %s but status is %s", current, req.Status)
	}
	if req.ApproverID != approver {
		return fmt.Errorf("approverId %q does not match the last approver %q", req.ApproverID, approver)
	}
	return nil
}
