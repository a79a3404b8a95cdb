// Package permission decides whether an actor may apply a moderation action
// to a target. It is pure: callers supply the snapshot, including the number
// of other active admins, read in the same transaction as the mutation.
package permission

import (
	"math"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
)

// Denial reasons. They reach the actor and the logs, never the target.
const (
	ReasonActorInactive = "actor account is inactive"
	ReasonActorLocked   = "actor account is locked"
	ReasonSelfTarget    = "cannot moderate own account"
	ReasonInsufficient  = "insufficient role for action"
	ReasonHierarchy     = "target role is not below actor role"
	ReasonUnassignable  = "role cannot be assigned"
	ReasonAdminGrant    = "only super_admin may grant admin"
	ReasonLastAdmin     = "cannot remove the last active admin"
	ReasonUnknownAction = "unknown action"
)

// Request is the snapshot a decision is made on.
type Request struct {
	Actor  model.Account
	Target model.Account
	Action model.Action
	// NewRole is only read for ActionChangeRole.
	NewRole model.Role
	// OtherActiveAdmins counts is_admin, active, unlocked accounts other
	// than the target.
	OtherActiveAdmins int
	Now               time.Time
}

var minRole = map[model.Action]model.Role{
	model.ActionMute:       model.RoleModerator,
	model.ActionBan:        model.RoleModerator,
	model.ActionChangeRole: model.RoleAdmin,
	model.ActionDelete:     model.RoleAdmin,
}

// Check returns nil when the action is allowed and a *errs.DenialError
// otherwise.
func Check(req Request) error {
	actor, target := &req.Actor, &req.Target
	action := req.Action.Checked()

	if !actor.IsActive {
		return errs.Deny(ReasonActorInactive)
	}
	if actor.IsLocked(req.Now) {
		return errs.Deny(ReasonActorLocked)
	}
	if actor.ID == target.ID {
		return errs.Deny(ReasonSelfTarget)
	}

	need, ok := minRole[action]
	if !ok {
		return errs.Deny(ReasonUnknownAction)
	}
	actorRole, targetRole := actor.Role(), target.Role()
	if !actorRole.IsAtLeast(need) {
		return errs.Deny(ReasonInsufficient)
	}
	if !actorRole.Outranks(targetRole) {
		return errs.Deny(ReasonHierarchy)
	}

	if action == model.ActionChangeRole {
		switch {
		case !req.NewRole.IsValid() || req.NewRole == model.RoleSuperAdmin:
			return errs.Deny(ReasonUnassignable)
		case req.NewRole == model.RoleAdmin && actorRole != model.RoleSuperAdmin:
			return errs.Deny(ReasonAdminGrant)
		}
	}

	if target.IsAdmin && removesAdmin(req) && req.OtherActiveAdmins <= 0 {
		return errs.Deny(ReasonLastAdmin)
	}
	return nil
}

// removesAdmin reports whether the action would stop the target being an
// active admin.
func removesAdmin(req Request) bool {
	switch req.Action {
	case model.ActionBan, model.ActionDelete:
		return true
	case model.ActionChangeRole:
		return req.NewRole < model.RoleAdmin
	default:
		return false
	}
}

// CanActOn evaluates the hierarchy rules without an admin-count snapshot.
// For change_role it assumes a demotion to user.
func CanActOn(actor, target model.Account, action model.Action) (bool, string) {
	err := Check(Request{
		Actor:             actor,
		Target:            target,
		Action:            action,
		NewRole:           model.RoleUser,
		OtherActiveAdmins: math.MaxInt,
		Now:               time.Now(),
	})
	if err == nil {
		return true, ""
	}
	reason, _ := errs.DenialReason(err)
	return false, reason
}
