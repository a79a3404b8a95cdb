package model

import (
	"testing"
	"time"
)

func TestDeriveRole_HighestFlagWins(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mod, adm, sup bool
		want          Role
	}{
		{false, false, false, RoleUser},
		{true, false, false, RoleModerator},
		{true, true, false, RoleAdmin},
		{false, true, false, RoleAdmin},
		{false, false, true, RoleSuperAdmin},
		{true, true, true, RoleSuperAdmin},
	}
	for _, c := range cases {
		if got := DeriveRole(c.mod, c.adm, c.sup); got != c.want {
			t.Fatalf("DeriveRole(%v,%v,%v)=%s want %s", c.mod, c.adm, c.sup, got, c.want)
		}
	}
}

func TestRole_Ordering(t *testing.T) {
	t.Parallel()

	if !RoleSuperAdmin.Outranks(RoleAdmin) || RoleAdmin.Outranks(RoleAdmin) {
		t.Fatalf("outranks mismatch")
	}
	if !RoleAdmin.IsAtLeast(RoleModerator) || RoleUser.IsAtLeast(RoleModerator) {
		t.Fatalf("IsAtLeast mismatch")
	}
	if Role(42).IsAtLeast(RoleUser) {
		t.Fatalf("unknown role must not satisfy anything")
	}
	for _, r := range []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin} {
		got, ok := ParseRole(r.String())
		if !ok || got != r {
			t.Fatalf("ParseRole(%q)=%v,%v", r.String(), got, ok)
		}
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatalf("want parse failure")
	}
}

func TestAccount_LockAndMuteWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	a := &Account{}
	if a.IsLocked(now) || a.IsMutedAt(now) {
		t.Fatalf("zero account must be unrestricted")
	}

	a.LockedUntil = &past
	if a.IsLocked(now) {
		t.Fatalf("expired lock must not block")
	}
	a.LockedUntil = &future
	if !a.IsLocked(now) {
		t.Fatalf("future lock must block")
	}

	a.IsMuted = true
	if !a.IsMutedAt(now) {
		t.Fatalf("permanent mute must apply")
	}
	a.MutedUntil = &past
	if a.IsMutedAt(now) {
		t.Fatalf("expired mute must not apply")
	}

	// lock and mute are independent
	a.MutedUntil = &future
	a.LockedUntil = nil
	if a.IsLocked(now) || !a.IsMutedAt(now) {
		t.Fatalf("lock/mute must be orthogonal")
	}
}

func TestParseTerm(t *testing.T) {
	t.Parallel()

	ok := map[string]Term{
		"permanent": Permanent,
		"1d":        For(24 * time.Hour),
		"7D":        For(7 * 24 * time.Hour),
		"90m":       For(90 * time.Minute),
		" 12h ":     For(12 * time.Hour),
		"36500d":    For(MaxTerm),
	}
	for in, want := range ok {
		got, err := ParseTerm(in)
		if err != nil || got != want {
			t.Fatalf("ParseTerm(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "0d", "-1d", "abc", "-5m", "0s", "36501d", "213504d", "99999999999d", "900000h"} {
		if _, err := ParseTerm(in); err == nil {
			t.Fatalf("ParseTerm(%q) want error", in)
		}
	}
}

func TestTerm_Validate(t *testing.T) {
	t.Parallel()

	if err := Permanent.Validate(); err != nil {
		t.Fatalf("permanent: %v", err)
	}
	if err := For(MaxTerm).Validate(); err != nil {
		t.Fatalf("max term: %v", err)
	}
	for _, d := range []time.Duration{0, -time.Hour, MaxTerm + time.Nanosecond} {
		if err := For(d).Validate(); err == nil {
			t.Fatalf("For(%v).Validate() want error", d)
		}
	}
}

func TestTerm_Until(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if Permanent.MuteUntil(now) != nil {
		t.Fatalf("permanent mute has no end")
	}
	if got := Permanent.BanUntil(now); !got.Equal(time.Date(2126, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("permanent ban sentinel: %v", got)
	}
	day := For(24 * time.Hour)
	if got := day.MuteUntil(now); got == nil || !got.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("mute until: %v", got)
	}
	if got := day.BanUntil(now); !got.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("ban until: %v", got)
	}
}

func TestAction_Checked(t *testing.T) {
	t.Parallel()

	if ActionUnmute.Checked() != ActionMute || ActionUnban.Checked() != ActionBan || ActionDelete.Checked() != ActionDelete {
		t.Fatalf("checked mapping mismatch")
	}
}
