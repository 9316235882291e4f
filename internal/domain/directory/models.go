package directory

import (
	"time"

	"hradmin/internal/domain/auth"
)

type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Position     string    `json:"position,omitempty"`
	Department   string    `json:"department,omitempty"`
	ManagerID    string    `json:"managerId,omitempty"`
	Role         auth.Role `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Permissions is recomputed from Role on every call.
func (e Employee) Permissions() auth.PermissionSet {
	return auth.DerivePermissions(e.Role)
}

func (e Employee) Actor() auth.Actor {
	return auth.Actor{EmployeeID: e.ID, Role: e.Role}
}

func (e Employee) IsRoot() bool {
	return e.ManagerID == ""
}

// View is the outward representation with the derived permission list.
type View struct {
	Employee
	Permissions []auth.Permission `json:"permissions"`
}

func (e Employee) View() View {
	return View{Employee: e, Permissions: e.Permissions().List()}
}
