package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/gatekeeper/internal/model"
)

// NoReason replaces an empty moderation reason in notice bodies.
const NoReason = "No reason provided"

func reasonOrDefault(r string) string {
	if r = strings.TrimSpace(r); r == "" {
		return NoReason
	}
	return r
}

func untilText(until *time.Time) string {
	if until == nil {
		return "permanent"
	}
	return until.UTC().Format(time.RFC3339)
}

func notice(to uuid.UUID, title, body string) model.Notification {
	return model.Notification{RecipientID: to, Title: title, Body: body, Category: model.CategoryAnnouncement}
}

// MuteNotice announces a mute; until is nil for a permanent mute.
func MuteNotice(to uuid.UUID, until *time.Time, reason string) model.Notification {
	return notice(to, "Account muted", fmt.Sprintf(
		"Your account has been muted. Restriction: mute. Until: %s. Reason: %s.",
		untilText(until), reasonOrDefault(reason)))
}

// UnmuteNotice announces the lifting of a mute.
func UnmuteNotice(to uuid.UUID) model.Notification {
	return notice(to, "Account unmuted",
		"Your mute has been lifted. You can post and edit content again.")
}

// BanNotice announces a ban. permanent overrides until.
func BanNotice(to uuid.UUID, until time.Time, permanent bool, reason string) model.Notification {
	u := &until
	if permanent {
		u = nil
	}
	return notice(to, "Account banned", fmt.Sprintf(
		"Your account has been banned. Restriction: ban. Until: %s. Reason: %s.",
		untilText(u), reasonOrDefault(reason)))
}

// UnbanNotice announces the lifting of a ban.
func UnbanNotice(to uuid.UUID) model.Notification {
	return notice(to, "Account unbanned",
		"Your ban has been lifted. You can sign in again.")
}

// RoleNotice announces a role change.
func RoleNotice(to uuid.UUID, from, next model.Role) model.Notification {
	return notice(to, "Role changed", fmt.Sprintf(
		"Your role has been changed from %s to %s.", from, next))
}

// DeleteNotice announces a soft deletion.
func DeleteNotice(to uuid.UUID) model.Notification {
	return notice(to, "Account deleted",
		"Your account has been deleted by an administrator.")
}
