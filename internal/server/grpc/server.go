// Package grpcserver exposes the gatekeeper gRPC API handlers.
package grpcserver

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/gatekeeper/internal/convert"
	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	auth service.AuthService
	mod  service.ModerationService
	log  *zap.Logger
}

var _ GatekeeperServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, mod service.ModerationService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, mod: mod, log: log}
}

func (s *Server) fail(method string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.log.Error("handler failed", zap.String("method", method), zap.Error(err))
	}
	return st
}

func invalid(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// --- Auth ---

// Register creates a new user account.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sum, err := s.auth.Register(ctx, service.RegisterInput{
		Username: convert.GetString(req, "username"),
		Email:    convert.GetString(req, "email"),
		Password: convert.GetRaw(req, "password"),
	})
	if err != nil {
		return nil, s.fail(MethodRegister, err)
	}
	return convert.ToProtoSummary(sum), nil
}

// Login exchanges an identifier (username or email) and password for tokens.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identifier := convert.GetString(req, "identifier")
	if identifier == "" {
		identifier = convert.GetString(req, "username")
	}
	password := convert.GetRaw(req, "password")
	if identifier == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty identifier/password")
	}
	res, err := s.auth.Login(ctx, identifier, password)
	if err != nil {
		return nil, s.fail(MethodLogin, err)
	}
	return convert.ToProtoLogin(res), nil
}

// Refresh mints a new access token.
func (s *Server) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := convert.GetString(req, "refresh_token")
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "empty refresh_token")
	}
	res, err := s.auth.Refresh(ctx, raw)
	if err != nil {
		return nil, s.fail(MethodRefresh, err)
	}
	return convert.ToProtoRefresh(res), nil
}

// Me returns the caller as resolved from the access token.
func (s *Server) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return convert.ToProtoPrincipal(p), nil
}

// ChangePassword replaces the caller's password and returns a fresh pair.
func (s *Server) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	pair, err := s.auth.ChangePassword(ctx, p.AccountID,
		convert.GetRaw(req, "current_password"), convert.GetRaw(req, "new_password"))
	if err != nil {
		return nil, s.fail(MethodChangePassword, err)
	}
	return convert.ToProtoTokenPair(pair), nil
}

// --- Moderation ---

// Mute restricts the target's content mutations.
func (s *Server) Mute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodMute, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		term, err := convert.GetTerm(req, "duration")
		if err != nil {
			return model.ModerationResult{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return s.mod.Mute(ctx, actor, target, term, convert.GetString(req, "reason"))
	})
}

// Unmute lifts a mute.
func (s *Server) Unmute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodUnmute, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		return s.mod.Unmute(ctx, actor, target)
	})
}

// Ban locks the target out.
func (s *Server) Ban(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodBan, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		term, err := convert.GetTerm(req, "duration")
		if err != nil {
			return model.ModerationResult{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return s.mod.Ban(ctx, actor, target, term, convert.GetString(req, "reason"))
	})
}

// Unban lifts a ban or lockout.
func (s *Server) Unban(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodUnban, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		return s.mod.Unban(ctx, actor, target)
	})
}

// ChangeRole assigns user, moderator or admin.
func (s *Server) ChangeRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodChangeRole, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		role, err := convert.GetRole(req, "role")
		if err != nil {
			return model.ModerationResult{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return s.mod.ChangeRole(ctx, actor, target, role)
	})
}

// DeleteAccount soft-deletes the target.
func (s *Server) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.moderate(ctx, MethodDeleteAccount, req, func(actor, target uuid.UUID) (model.ModerationResult, error) {
		return s.mod.SoftDelete(ctx, actor, target)
	})
}

func (s *Server) moderate(ctx context.Context, method string, req *structpb.Struct,
	do func(actor, target uuid.UUID) (model.ModerationResult, error)) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	target, err := convert.GetUUID(req, "target_id")
	if err != nil {
		return nil, invalid(err)
	}
	res, err := do(p.AccountID, target)
	if err != nil {
		return nil, s.fail(method, err)
	}
	return convert.ToProtoModeration(res), nil
}

func principal(ctx context.Context) (model.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return model.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}
