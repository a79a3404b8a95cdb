package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/notify"
	"github.com/and161185/gatekeeper/internal/permission"
	"github.com/and161185/gatekeeper/internal/repository"
)

// ModerationService applies administrative restrictions to accounts.
// Re-applying an action is last-write-wins and succeeds.
type ModerationService interface {
	Mute(ctx context.Context, actorID, targetID uuid.UUID, term model.Term, reason string) (model.ModerationResult, error)
	Unmute(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error)
	Ban(ctx context.Context, actorID, targetID uuid.UUID, term model.Term, reason string) (model.ModerationResult, error)
	Unban(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error)
	ChangeRole(ctx context.Context, actorID, targetID uuid.UUID, role model.Role) (model.ModerationResult, error)
	SoftDelete(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error)
}

type ModerationServiceImpl struct {
	accounts repository.AccountRepository
	notes    notify.Emitter
	settings
}

var _ ModerationService = (*ModerationServiceImpl)(nil)

// NewModerationService constructs ModerationService. Notifications are handed
// to notes after the transaction commits.
func NewModerationService(accounts repository.AccountRepository, notes notify.Emitter, opts ...Option) *ModerationServiceImpl {
	return &ModerationServiceImpl{accounts: accounts, notes: notes, settings: newSettings(opts)}
}

// mutation describes one moderation action.
type mutation struct {
	action  model.Action
	newRole model.Role
	// adminSet is set for actions that may lower the number of active admins.
	adminSet bool
	apply    func(a *model.Account, now time.Time)
	notice   func(before, after *model.Account) model.Notification
}

func (s *ModerationServiceImpl) run(ctx context.Context, actorID, targetID uuid.UUID, m mutation) (res model.ModerationResult, err error) {
	defer func() { s.metrics.RecordModeration(ctx, m.action, err) }()

	now := s.now().UTC()
	var note model.Notification

	err = s.accounts.WithinTx(ctx, func(ctx context.Context, tx repository.AccountTx) error {
		if m.adminSet {
			if err := tx.LockAdminSet(ctx); err != nil {
				return err
			}
		}
		actor, err := tx.Get(ctx, actorID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.Deny(permission.ReasonActorInactive)
			}
			return err
		}
		target, err := tx.GetForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if !target.IsActive {
			return errs.ErrNotFound
		}

		others := 0
		if m.adminSet && target.IsAdmin {
			if others, err = tx.CountActiveAdmins(ctx, target.ID, now); err != nil {
				return err
			}
		}
		if err := permission.Check(permission.Request{
			Actor:             *actor,
			Target:            *target,
			Action:            m.action,
			NewRole:           m.newRole,
			OtherActiveAdmins: others,
			Now:               now,
		}); err != nil {
			return err
		}

		before := *target
		m.apply(target, now)
		if err := tx.SaveModeration(ctx, target); err != nil {
			return err
		}
		res = model.ModerationResult{TargetID: target.ID, State: target.Restrictions()}
		note = m.notice(&before, target)
		return nil
	})
	if err != nil {
		if reason, ok := errs.DenialReason(err); ok {
			s.log.Info("moderation denied",
				zap.String("action", string(m.action)),
				zap.String("actor_id", actorID.String()),
				zap.String("target_id", targetID.String()),
				zap.String("reason", reason),
			)
		}
		return model.ModerationResult{}, err
	}

	s.notes.Emit(note)
	s.log.Info("moderation applied",
		zap.String("action", string(m.action)),
		zap.String("actor_id", actorID.String()),
		zap.String("target_id", targetID.String()),
	)
	return res, nil
}

func checkTerm(term model.Term) error {
	if err := term.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

// Mute restricts content mutation; a permanent term leaves muted_until empty.
func (s *ModerationServiceImpl) Mute(ctx context.Context, actorID, targetID uuid.UUID, term model.Term, reason string) (model.ModerationResult, error) {
	if err := checkTerm(term); err != nil {
		return model.ModerationResult{}, err
	}
	reason = strings.TrimSpace(reason)
	return s.run(ctx, actorID, targetID, mutation{
		action: model.ActionMute,
		apply: func(a *model.Account, now time.Time) {
			a.IsMuted = true
			a.MutedUntil = term.MuteUntil(now)
			a.MuteReason = reason
		},
		notice: func(_, a *model.Account) model.Notification {
			return notify.MuteNotice(a.ID, a.MutedUntil, a.MuteReason)
		},
	})
}

// Unmute clears the three mute fields.
func (s *ModerationServiceImpl) Unmute(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error) {
	return s.run(ctx, actorID, targetID, mutation{
		action: model.ActionUnmute,
		apply: func(a *model.Account, _ time.Time) {
			a.IsMuted, a.MutedUntil, a.MuteReason = false, nil, ""
		},
		notice: func(_, a *model.Account) model.Notification { return notify.UnmuteNotice(a.ID) },
	})
}

// Ban blocks login until the term ends.
func (s *ModerationServiceImpl) Ban(ctx context.Context, actorID, targetID uuid.UUID, term model.Term, reason string) (model.ModerationResult, error) {
	if err := checkTerm(term); err != nil {
		return model.ModerationResult{}, err
	}
	reason = strings.TrimSpace(reason)
	return s.run(ctx, actorID, targetID, mutation{
		action:   model.ActionBan,
		adminSet: true,
		apply: func(a *model.Account, now time.Time) {
			until := term.BanUntil(now)
			a.LockedUntil = &until
			a.BanReason = reason
		},
		notice: func(_, a *model.Account) model.Notification {
			return notify.BanNotice(a.ID, *a.LockedUntil, term.Permanent, a.BanReason)
		},
	})
}

// Unban clears the lock and the failure counter.
func (s *ModerationServiceImpl) Unban(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error) {
	return s.run(ctx, actorID, targetID, mutation{
		action: model.ActionUnban,
		apply: func(a *model.Account, _ time.Time) {
			a.LockedUntil, a.BanReason, a.FailedLoginAttempts = nil, "", 0
		},
		notice: func(_, a *model.Account) model.Notification { return notify.UnbanNotice(a.ID) },
	})
}

// ChangeRole sets at most one of is_moderator and is_admin. super_admin is
// never assignable.
func (s *ModerationServiceImpl) ChangeRole(ctx context.Context, actorID, targetID uuid.UUID, role model.Role) (model.ModerationResult, error) {
	return s.run(ctx, actorID, targetID, mutation{
		action:   model.ActionChangeRole,
		newRole:  role,
		adminSet: true,
		apply: func(a *model.Account, _ time.Time) {
			a.IsModerator = role == model.RoleModerator
			a.IsAdmin = role == model.RoleAdmin
		},
		notice: func(before, after *model.Account) model.Notification {
			return notify.RoleNotice(after.ID, before.Role(), after.Role())
		},
	})
}

// SoftDelete deactivates the account and leaves the role flags alone.
func (s *ModerationServiceImpl) SoftDelete(ctx context.Context, actorID, targetID uuid.UUID) (model.ModerationResult, error) {
	return s.run(ctx, actorID, targetID, mutation{
		action:   model.ActionDelete,
		adminSet: true,
		apply:    func(a *model.Account, _ time.Time) { a.IsActive = false },
		notice:   func(_, a *model.Account) model.Notification { return notify.DeleteNotice(a.ID) },
	})
}
