package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PermanentBanYears is how far in the future a permanent ban's locked_until is
// placed. Lock checks then need no special case.
const PermanentBanYears = 100

// PermanentBanUntil returns the locked_until sentinel for a permanent ban.
func PermanentBanUntil(now time.Time) time.Time {
	return now.UTC().AddDate(PermanentBanYears, 0, 0)
}

// MaxTerm is the longest bounded term; anything longer must be permanent.
const MaxTerm = PermanentBanYears * 365 * 24 * time.Hour

// Term is the length of a mute or ban.
type Term struct {
	Permanent bool
	Duration  time.Duration
}

// Permanent is the unbounded term.
var Permanent = Term{Permanent: true}

// For returns a bounded term.
func For(d time.Duration) Term { return Term{Duration: d} }

// Validate rejects empty or overlong bounded terms.
func (t Term) Validate() error {
	if t.Permanent {
		return nil
	}
	if t.Duration <= 0 {
		return errors.New("term must be positive or permanent")
	}
	if t.Duration > MaxTerm {
		return fmt.Errorf("term longer than %d years, use permanent", PermanentBanYears)
	}
	return nil
}

// MuteUntil returns muted_until for the term; nil means permanent.
func (t Term) MuteUntil(now time.Time) *time.Time {
	if t.Permanent {
		return nil
	}
	u := now.UTC().Add(t.Duration)
	return &u
}

// BanUntil returns locked_until for the term.
func (t Term) BanUntil(now time.Time) time.Time {
	if t.Permanent {
		return PermanentBanUntil(now)
	}
	return now.UTC().Add(t.Duration)
}

func (t Term) String() string {
	if t.Permanent {
		return "permanent"
	}
	return t.Duration.String()
}

// ParseTerm accepts "permanent", day counts like "1d"/"30d", or anything
// time.ParseDuration understands ("12h", "90m").
func ParseTerm(s string) (Term, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return Term{}, errors.New("empty term")
	case "permanent", "forever":
		return Permanent, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return Term{}, fmt.Errorf("bad day count %q", s)
		}
		if int64(n) > int64(MaxTerm/(24*time.Hour)) {
			return Term{}, fmt.Errorf("term longer than %d years, use permanent", PermanentBanYears)
		}
		return For(time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Term{}, fmt.Errorf("bad term %q: %w", s, err)
	}
	t := For(d)
	if err := t.Validate(); err != nil {
		return Term{}, err
	}
	return t, nil
}
