package hierarchy

import (
	"strings"

	"hradmin/internal/domain/directory"
)

// Node is a derived view of the directory; it is rebuilt on every read and
// never stored.
type Node struct {
	directory.Employee
	Children []*Node `json:"children"`
}

// Walk visits n and its descendants depth-first, children in id order.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	if n == nil {
		return
	}
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(node *Node, depth int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

func (n *Node) Size() int {
	count := 0
	n.Walk(func(*Node, int) { count++ })
	return count
}

var topDesignations = []string{
	"ceo",
	"chief executive officer",
	"general manager",
	"managing director",
	"owner",
}

// IsTopDesignation reports whether position marks the head of the company.
func IsTopDesignation(position string) bool {
	normalized := strings.ToLower(strings.TrimSpace(position))
	for _, designation := range topDesignations {
		if normalized == designation {
			return true
		}
	}
	return false
}

// BuildTreeFrom derives the org tree from parent pointers. With one root that
// root is used; with several the lowest id wins; with none the lowest-id
// employee holding a top designation is used, falling back to the lowest id
// overall. Returns nil for an empty directory.
func BuildTreeFrom(employees []directory.Employee) *Node {
	if len(employees) == 0 {
		return nil
	}
	sorted := sortedCopy(employees)
	children := childIndex(sorted)
	root := pickRoot(sorted)
	return attach(root, children, make(map[string]bool, len(sorted)))
}

// BuildForestFrom returns every tree in the directory. Employees whose
// manager is missing start their own tree, and members of a corrupted cycle
// are surfaced as extra roots so each employee appears exactly once.
func BuildForestFrom(employees []directory.Employee) []*Node {
	sorted := sortedCopy(employees)
	index := indexByID(sorted)
	children := childIndex(sorted)
	visited := make(map[string]bool, len(sorted))

	var forest []*Node
	for _, emp := range sorted {
		if _, ok := index[emp.ManagerID]; emp.ManagerID == "" || !ok {
			forest = append(forest, attach(emp, children, visited))
		}
	}
	for _, emp := range sorted {
		if !visited[emp.ID] {
			forest = append(forest, attach(emp, children, visited))
		}
	}
	return forest
}

func pickRoot(sorted []directory.Employee) directory.Employee {
	for _, emp := range sorted {
		if emp.IsRoot() {
			return emp
		}
	}
	for _, emp := range sorted {
		if IsTopDesignation(emp.Position) {
			return emp
		}
	}
	return sorted[0]
}

func attach(emp directory.Employee, children map[string][]directory.Employee, visited map[string]bool) *Node {
	visited[emp.ID] = true
	node := &Node{Employee: emp, Children: []*Node{}}
	for _, child := range children[emp.ID] {
		if visited[child.ID] {
			continue
		}
		node.Children = append(node.Children, attach(child, children, visited))
	}
	return node
}

func sortedCopy(employees []directory.Employee) []directory.Employee {
	out := make([]directory.Employee, len(employees))
	copy(out, employees)
	directory.SortByID(out)
	return out
}

// childIndex maps a manager id to its direct reports, preserving input order.
func childIndex(employees []directory.Employee) map[string][]directory.Employee {
	idx := make(map[string][]directory.Employee, len(employees))
	for _, emp := range employees {
		if emp.ManagerID == "" {
			continue
		}
		idx[emp.ManagerID] = append(idx[emp.ManagerID], emp)
	}
	return idx
}

func indexByID(employees []directory.Employee) map[string]directory.Employee {
	idx := make(map[string]directory.Employee, len(employees))
	for _, emp := range employees {
		idx[emp.ID] = emp
	}
	return idx
}

// isAncestorOrSelf walks parent pointers upward from id and reports whether
// ancestorID is met. The walk stops on a repeated id so corrupted data
// cannot loop forever.
func isAncestorOrSelf(index map[string]directory.Employee, ancestorID, id string) bool {
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		if cur == ancestorID {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		emp, ok := index[cur]
		if !ok {
			return false
		}
		cur = emp.ManagerID
	}
	return false
}
