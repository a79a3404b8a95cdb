// Package convert maps domain values to and from the google.protobuf.Struct
// messages carried by the gRPC API.
package convert

import (
	"fmt"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	model "github.com/and161185/gatekeeper/internal/model"
)

// --- helpers ---

func str(s string) *structpb.Value { return structpb.NewStringValue(s) }

func ts(t *time.Time) *structpb.Value {
	if t == nil || t.IsZero() {
		return structpb.NewNullValue()
	}
	return str(t.UTC().Format(time.RFC3339))
}

func obj(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

// --- requests (client -> server) ---

// GetString returns the trimmed string field key, or "" when it is absent or
// not a string.
func GetString(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// GetRaw returns the string field key untouched. Secrets are not trimmed.
func GetRaw(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// GetUUID parses the string field key as an account id.
func GetUUID(s *structpb.Struct, key string) (u.UUID, error) {
	raw := GetString(s, key)
	if raw == "" {
		return u.Nil, fmt.Errorf("%s is required", key)
	}
	id, err := u.FromString(raw)
	if err != nil {
		return u.Nil, fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}

// GetTerm parses the string field key with model.ParseTerm.
func GetTerm(s *structpb.Struct, key string) (model.Term, error) {
	t, err := model.ParseTerm(GetString(s, key))
	if err != nil {
		return model.Term{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}

// GetRole parses the string field key as a role name.
func GetRole(s *structpb.Struct, key string) (model.Role, error) {
	raw := GetString(s, key)
	r, ok := model.ParseRole(raw)
	if !ok {
		return model.RoleUser, fmt.Errorf("%s: unknown role %q", key, raw)
	}
	return r, nil
}

// --- responses (server -> client) ---

// ToProtoSummary converts an account summary.
func ToProtoSummary(a model.AccountSummary) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"id":       str(a.ID.String()),
		"username": str(a.Username),
		"email":    str(a.Email),
		"role":     str(a.Role.String()),
	})
}

// ToProtoLogin converts a login result. expires_in is in seconds.
func ToProtoLogin(r model.LoginResult) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"access_token":  str(r.AccessToken),
		"refresh_token": str(r.RefreshToken),
		"token_type":    str(r.TokenType),
		"expires_in":    structpb.NewNumberValue(r.ExpiresIn.Seconds()),
		"account":       structpb.NewStructValue(ToProtoSummary(r.Account)),
	})
}

// ToProtoRefresh converts a refresh result.
func ToProtoRefresh(r model.RefreshResult) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"access_token": str(r.AccessToken),
		"token_type":   str(r.TokenType),
		"expires_in":   structpb.NewNumberValue(r.ExpiresIn.Seconds()),
	})
}

// ToProtoTokenPair converts the pair issued after a password change.
func ToProtoTokenPair(p model.TokenPair) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"access_token":       str(p.AccessToken),
		"access_expires_at":  ts(&p.AccessExpiresAt),
		"refresh_token":      str(p.RefreshToken),
		"refresh_expires_at": ts(&p.RefreshExpiresAt),
		"token_type":         str(model.TokenTypeBearer),
	})
}

// ToProtoPrincipal converts the authenticated caller.
func ToProtoPrincipal(p model.Principal) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"id":          str(p.AccountID.String()),
		"username":    str(p.Username),
		"role":        str(p.Role.String()),
		"muted":       structpb.NewBoolValue(p.Muted),
		"muted_until": ts(p.MutedUntil),
	})
}

// ToProtoState converts the restriction state of an account.
func ToProtoState(st model.RestrictionState) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"role":                  str(st.Role.String()),
		"is_active":             structpb.NewBoolValue(st.IsActive),
		"is_muted":              structpb.NewBoolValue(st.IsMuted),
		"muted_until":           ts(st.MutedUntil),
		"mute_reason":           str(st.MuteReason),
		"locked_until":          ts(st.LockedUntil),
		"ban_reason":            str(st.BanReason),
		"failed_login_attempts": structpb.NewNumberValue(float64(st.FailedLoginAttempts)),
	})
}

// ToProtoModeration converts a moderation result.
func ToProtoModeration(r model.ModerationResult) *structpb.Struct {
	return obj(map[string]*structpb.Value{
		"target_id": str(r.TargetID.String()),
		"state":     structpb.NewStructValue(ToProtoState(r.State)),
	})
}
