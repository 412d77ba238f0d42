package models

import "fmt"

// Role is the authority a user holds for a room, resolved from room
// ownership, agency ownership and agency membership.
//
// Roles are ranked; when several sources apply the highest rank wins:
//
//	owner > manager > host > member > none
type Role string

const (
	RoleNone    Role = "none"
	RoleMember  Role = "member"
	RoleHost    Role = "host"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
)

// roleRank maps a role to its numeric rank. Unknown roles rank as none.
var roleRank = map[Role]int{
	RoleNone:    0,
	RoleMember:  1,
	RoleHost:    2,
	RoleManager: 3,
	RoleOwner:   4,
}

// Rank returns the numeric rank of r.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// IsAuthority reports whether r may grant, deny or revoke mic access.
func (r Role) IsAuthority() bool {
	return r.AtLeast(RoleHost)
}

// MaxRole returns the higher ranked of a and b.
func MaxRole(a, b Role) Role {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseMembershipRole validates a role string stored in a membership.
// "none" is not a membership role; absence of a row means none.
func ParseMembershipRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleMember, RoleHost, RoleManager, RoleOwner:
		return r, nil
	default:
		return RoleNone, fmt.Errorf("invalid membership role %q", s)
	}
}
