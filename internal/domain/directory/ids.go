package directory

import (
	"sort"
	"strconv"
	"strings"
)

// IDFloor is the value generated ids start above.
const IDFloor = 10000

// NextEmployeeID returns one more than the largest numeric id, never less
// than IDFloor+1. Non-numeric ids are ignored.
func NextEmployeeID(existingIDs []string) string {
	highest := int64(IDFloor)
	for _, id := range existingIDs {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return strconv.FormatInt(highest+1, 10)
}

// CompareIDs orders numeric ids numerically and places them before
// non-numeric ids, which compare lexically.
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func SortByID(employees []Employee) {
	sort.SliceStable(employees, func(i, j int) bool {
		return CompareIDs(employees[i].ID, employees[j].ID) < 0
	})
}

func IDs(employees []Employee) []string {
	out := make([]string, 0, len(employees))
	for _, emp := range employees {
		out = append(out, emp.ID)
	}
	return out
}
