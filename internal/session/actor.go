package session

import "fmt"

type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleAdmin     Role = "admin"
	RoleDeputy    Role = "deputy"
	RolePrincipal Role = "principal"
	RoleDriver    Role = "driver"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleAdmin, RoleDeputy, RolePrincipal, RoleDriver:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// Actor is the authenticated caller. It is passed explicitly into every workflow call;
// the identity layer is trusted once it has produced one.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}
