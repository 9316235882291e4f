package hierarchy

import (
	"fmt"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/directory"
)

// CheckIntegrity validates a whole directory before it is written in bulk:
// ids are unique and non-empty, roles are known, every manager pointer
// resolves, nobody reports to themselves and the parent pointers are acyclic.
func CheckIntegrity(employees []directory.Employee) error {
	var issues []apperr.FieldIssue
	index := make(map[string]directory.Employee, len(employees))
	for i, emp := range employees {
		field := fmt.Sprintf("employees[%d]", i)
		switch {
		case emp.ID == "":
			issues = append(issues, apperr.FieldIssue{Field: field + ".id", Reason: "is required"})
			continue
		case !emp.Role.Valid():
			issues = append(issues, apperr.FieldIssue{Field: field + ".role", Reason: fmt.Sprintf("unknown role %q", emp.Role)})
		}
		if _, dup := index[emp.ID]; dup {
			issues = append(issues, apperr.FieldIssue{Field: field + ".id", Reason: "duplicate id " + emp.ID})
			continue
		}
		index[emp.ID] = emp
	}

	for _, emp := range sortedCopy(employees) {
		if emp.ID == "" || emp.ManagerID == "" {
			continue
		}
		if emp.ManagerID == emp.ID {
			issues = append(issues, apperr.FieldIssue{Field: emp.ID + ".managerId", Reason: "cannot report to self"})
			continue
		}
		if _, ok := index[emp.ManagerID]; !ok {
			issues = append(issues, apperr.FieldIssue{Field: emp.ID + ".managerId", Reason: "unknown manager " + emp.ManagerID})
		}
	}

	for _, id := range cycleMembers(index) {
		issues = append(issues, apperr.FieldIssue{Field: id + ".managerId", Reason: "is part of a reporting cycle"})
	}

	if len(issues) > 0 {
		return apperr.Validation("directory integrity check failed", issues...)
	}
	return nil
}

// cycleMembers returns, in id order, the employees that sit on a cycle of
// length two or more.
func cycleMembers(index map[string]directory.Employee) []string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(index))
	onCycle := make(map[string]bool)

	ordered := make([]directory.Employee, 0, len(index))
	for _, emp := range index {
		ordered = append(ordered, emp)
	}
	directory.SortByID(ordered)

	for _, start := range ordered {
		if state[start.ID] != unvisited {
			continue
		}
		var path []string
		cur := start.ID
		for cur != "" && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			next, ok := index[cur]
			if !ok || next.ManagerID == cur {
				cur = ""
				break
			}
			cur = next.ManagerID
			if _, known := index[cur]; !known {
				cur = ""
			}
		}
		if cur != "" && state[cur] == onPath {
			marking := false
			for _, id := range path {
				if id == cur {
					marking = true
				}
				if marking {
					onCycle[id] = true
				}
			}
		}
		for _, id := range path {
			state[id] = done
		}
	}

	out := make([]string, 0, len(onCycle))
	for _, emp := range ordered {
		if onCycle[emp.ID] {
			out = append(out, emp.ID)
		}
	}
	return out
}
