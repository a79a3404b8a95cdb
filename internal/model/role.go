package model

import "strings"

// Role is the ordered role hierarchy: user < moderator < admin < super_admin.
type Role int

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
)

// DeriveRole evaluates the flags high-to-low; the highest set flag wins.
func DeriveRole(isModerator, isAdmin, isSuperAdmin bool) Role {
	switch {
	case isSuperAdmin:
		return RoleSuperAdmin
	case isAdmin:
		return RoleAdmin
	case isModerator:
		return RoleModerator
	default:
		return RoleUser
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "super_admin"
	default:
		return "unknown"
	}
}

// IsValid reports whether r is one of the predefined roles.
func (r Role) IsValid() bool { return r >= RoleUser && r <= RoleSuperAdmin }

// IsAtLeast checks if r meets the minimum required level.
func (r Role) IsAtLeast(min Role) bool { return r.IsValid() && r >= min }

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool { return r.IsValid() && r > other }

// ParseRole parses the string form produced by String.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "moderator":
		return RoleModerator, true
	case "admin":
		return RoleAdmin, true
	case "super_admin", "superadmin":
		return RoleSuperAdmin, true
	default:
		return RoleUser, false
	}
}

// Action is a moderation action subject to the permission engine.
type Action string

const (
	ActionChangeRole Action = "change_role"
	ActionMute       Action = "mute"
	ActionUnmute     Action = "unmute"
	ActionBan        Action = "ban"
	ActionUnban      Action = "unban"
	ActionDelete     Action = "delete"
)

// Checked returns the action the permission rules are evaluated under:
// lifting a restriction needs the same standing as imposing it.
func (a Action) Checked() Action {
	switch a {
	case ActionUnmute:
		return ActionMute
	case ActionUnban:
		return ActionBan
	default:
		return a
	}
}
