package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/notify"
	"github.com/and161185/gatekeeper/internal/repository/memory"
	"github.com/and161185/gatekeeper/internal/service"
	"github.com/and161185/gatekeeper/internal/token"
)

const bufSize = 1 << 20

// plainHasher keeps handler tests fast.
type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error)  { return "plain:" + s, nil }
func (plainHasher) Compare(s, encoded string) bool { return encoded == "plain:"+s }

type harness struct {
	t      *testing.T
	store  *memory.Store
	client *Client
	notes  *notify.Dispatcher
	cc     *grpc.ClientConn
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	store := memory.NewStore()
	tokens, err := token.New(token.Config{
		Secret:     []byte("grpc-test-secret-0123"),
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	lim := memory.NewLimiter(store, limiter.Policy{MaxFails: 3, LockFor: 15 * time.Minute})
	notes := notify.NewDispatcher(store, log, 16)

	auth := service.NewAuthService(store, tokens, lim, service.WithLogger(log), service.WithHasher(plainHasher{}))
	mod := service.NewModerationService(store, notes, service.WithLogger(log))

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(auth),
	))
	RegisterGatekeeperServer(gs, New(auth, mod, log))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = cc.Close()
		gs.Stop()
		_ = lis.Close()
		_ = notes.Close(context.Background())
	})
	return &harness{t: t, store: store, client: NewClient(cc), notes: notes, cc: cc}
}

func (h *harness) seed(name string, role model.Role) *model.Account {
	h.t.Helper()
	a, err := service.NewAccount(plainHasher{}, name, name+"@example.com", "password-"+name)
	if err != nil {
		h.t.Fatalf("NewAccount: %v", err)
	}
	a.IsModerator = role == model.RoleModerator
	a.IsAdmin = role >= model.RoleAdmin
	a.IsSuperAdmin = role == model.RoleSuperAdmin
	if err := h.store.Create(context.Background(), a); err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	return a
}

func req(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func bearer(tok string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func field(s *structpb.Struct, key string) string { return s.GetFields()[key].GetStringValue() }

func (h *harness) login(identifier, password string) (*structpb.Struct, error) {
	return h.client.Call(context.Background(), MethodLogin, req(h.t, map[string]any{
		"identifier": identifier, "password": password,
	}))
}

func (h *harness) mustLogin(identifier, password string) string {
	h.t.Helper()
	out, err := h.login(identifier, password)
	if err != nil {
		h.t.Fatalf("login %s: %v", identifier, err)
	}
	return field(out, "access_token")
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := status.Code(err); got != code {
		t.Fatalf("want %s, got %v", code, err)
	}
}

func TestServer_E2E_LoginBanUnban(t *testing.T) {
	t.Parallel()
	h := startHarness(t)
	admin := h.seed("admin", model.RoleAdmin)
	h.seed("admin2", model.RoleAdmin)

	reg, err := h.client.Call(context.Background(), MethodRegister, req(t, map[string]any{
		"username": "carol", "email": "Carol@Example.com", "password": "carol-secret",
	}))
	if err != nil || field(reg, "role") != "user" || field(reg, "email") != "carol@example.com" {
		t.Fatalf("register: %v, resp=%v", err, reg)
	}
	carolID := field(reg, "id")

	out, err := h.login("carol@example.com", "carol-secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if field(out, "token_type") != "bearer" || out.GetFields()["expires_in"].GetNumberValue() != 900 {
		t.Fatalf("login response: %v", out)
	}
	carolTok := field(out, "access_token")

	me, err := h.client.Call(bearer(carolTok), MethodMe, nil)
	if err != nil || field(me, "id") != carolID || field(me, "role") != "user" {
		t.Fatalf("me: %v, resp=%v", err, me)
	}

	adminTok := h.mustLogin("admin", "password-admin")
	ban, err := h.client.Call(bearer(adminTok), MethodBan, req(t, map[string]any{
		"target_id": carolID, "duration": "1d", "reason": "flooding",
	}))
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	state := ban.GetFields()["state"].GetStructValue()
	if field(state, "ban_reason") != "flooding" || field(state, "locked_until") == "" {
		t.Fatalf("ban state: %v", state)
	}

	_, err = h.login("carol", "carol-secret")
	wantCode(t, err, codes.FailedPrecondition)
	if _, err := h.client.Call(bearer(carolTok), MethodMe, nil); err != nil {
		t.Fatalf("me with pre-ban token: %v", err)
	}

	if _, err := h.client.Call(bearer(adminTok), MethodUnban, req(t, map[string]any{"target_id": carolID})); err != nil {
		t.Fatalf("unban: %v", err)
	}
	h.mustLogin("carol", "carol-secret")

	if err := h.notes.Close(context.Background()); err != nil {
		t.Fatalf("close dispatcher: %v", err)
	}
	carol, err := h.store.GetByIdentifier(context.Background(), "carol")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	inbox := h.store.Inbox(carol.ID)
	if len(inbox) != 2 || inbox[0].Title != "Account banned" || inbox[1].Title != "Account unbanned" {
		t.Fatalf("inbox: %+v", inbox)
	}
	if !strings.Contains(inbox[0].Body, "flooding") {
		t.Fatalf("ban notice body: %q", inbox[0].Body)
	}
	if len(h.store.Inbox(admin.ID)) != 0 {
		t.Fatalf("actor must not be notified")
	}
}

func TestServer_RefreshAndChangePassword(t *testing.T) {
	t.Parallel()
	h := startHarness(t)
	h.seed("dave", model.RoleUser)

	out, err := h.login("dave", "password-dave")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	refresh := field(out, "refresh_token")

	ref, err := h.client.Call(context.Background(), MethodRefresh, req(t, map[string]any{"refresh_token": refresh}))
	if err != nil || field(ref, "access_token") == "" || field(ref, "token_type") != "bearer" {
		t.Fatalf("refresh: %v, resp=%v", err, ref)
	}

	_, err = h.client.Call(bearer(field(out, "access_token")), MethodChangePassword, req(t, map[string]any{
		"current_password": "wrong", "new_password": "brand-new-secret",
	}))
	wantCode(t, err, codes.Unauthenticated)

	pair, err := h.client.Call(bearer(field(out, "access_token")), MethodChangePassword, req(t, map[string]any{
		"current_password": "password-dave", "new_password": "brand-new-secret",
	}))
	if err != nil || field(pair, "access_token") == "" {
		t.Fatalf("change password: %v", err)
	}

	_, err = h.client.Call(bearer(field(out, "access_token")), MethodMe, nil)
	wantCode(t, err, codes.Unauthenticated)
	_, err = h.client.Call(context.Background(), MethodRefresh, req(t, map[string]any{"refresh_token": refresh}))
	wantCode(t, err, codes.Unauthenticated)

	if _, err := h.client.Call(bearer(field(pair, "access_token")), MethodMe, nil); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestServer_ProtectedRequiresToken(t *testing.T) {
	t.Parallel()
	h := startHarness(t)

	_, err := h.client.Call(context.Background(), MethodMe, nil)
	wantCode(t, err, codes.Unauthenticated)

	_, err = h.client.Call(bearer("not.a.jwt"), MethodMute, req(t, map[string]any{"target_id": "x"}))
	wantCode(t, err, codes.Unauthenticated)

	resp, err := healthpb.NewHealthClient(h.cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health must not require auth: %v %v", resp, err)
	}
}

func TestServer_DenialIsGeneric(t *testing.T) {
	t.Parallel()
	h := startHarness(t)
	h.seed("mod", model.RoleModerator)
	target := h.seed("erin", model.RoleUser)
	tok := h.mustLogin("mod", "password-mod")

	_, err := h.client.Call(bearer(tok), MethodChangeRole, req(t, map[string]any{
		"target_id": target.ID.String(), "role": "moderator",
	}))
	wantCode(t, err, codes.PermissionDenied)
	if msg := status.Convert(err).Message(); msg != "permission denied" {
		t.Fatalf("denial message leaks detail: %q", msg)
	}

	mute, err := h.client.Call(bearer(tok), MethodMute, req(t, map[string]any{
		"target_id": target.ID.String(), "duration": "permanent",
	}))
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	state := mute.GetFields()["state"].GetStructValue().GetFields()
	if !state["is_muted"].GetBoolValue() {
		t.Fatalf("mute state: %v", state)
	}
	if _, ok := state["muted_until"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("permanent mute until: %v", state["muted_until"])
	}
}

func TestServer_BadArguments(t *testing.T) {
	t.Parallel()
	h := startHarness(t)
	admin := h.seed("admin", model.RoleAdmin)
	target := h.seed("frank", model.RoleUser)
	tok := h.mustLogin("admin", "password-admin")

	cases := []struct {
		method string
		in     map[string]any
		code   codes.Code
	}{
		{MethodBan, map[string]any{"target_id": "nope", "duration": "1d"}, codes.InvalidArgument},
		{MethodBan, map[string]any{"target_id": target.ID.String(), "duration": "soon"}, codes.InvalidArgument},
		{MethodChangeRole, map[string]any{"target_id": target.ID.String(), "role": "emperor"}, codes.InvalidArgument},
		{MethodChangeRole, map[string]any{"target_id": target.ID.String(), "role": "super_admin"}, codes.PermissionDenied},
		{MethodDeleteAccount, map[string]any{"target_id": admin.ID.String()}, codes.PermissionDenied},
		{MethodUnmute, map[string]any{"target_id": "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"}, codes.NotFound},
	}
	for _, c := range cases {
		_, err := h.client.Call(bearer(tok), c.method, req(t, c.in))
		if got := status.Code(err); got != c.code {
			t.Fatalf("%s %v: want %s, got %v", c.method, c.in, c.code, err)
		}
	}

	_, err := h.login("", "")
	wantCode(t, err, codes.InvalidArgument)
	_, err = h.login("frank", "wrong")
	wantCode(t, err, codes.Unauthenticated)
	_, err = h.client.Call(context.Background(), MethodRegister, req(t, map[string]any{
		"username": "frank", "email": "other@example.com", "password": "long-enough",
	}))
	wantCode(t, err, codes.AlreadyExists)
}

func TestToStatus(t *testing.T) {
	t.Parallel()

	cases := map[error]codes.Code{
		errs.ErrValidation:                       codes.InvalidArgument,
		errs.ErrInvalidCredentials:               codes.Unauthenticated,
		errs.ErrInvalidToken:                     codes.Unauthenticated,
		errs.ErrAccountLocked:                    codes.FailedPrecondition,
		errs.Deny("hierarchy"):                   codes.PermissionDenied,
		errs.ErrNotFound:                         codes.NotFound,
		errs.ErrAlreadyExists:                    codes.AlreadyExists,
		errs.ErrConflict:                         codes.FailedPrecondition,
		fmt.Errorf("wrap: %w", context.Canceled): codes.Canceled,
		context.DeadlineExceeded:                 codes.DeadlineExceeded,
		errors.New("connection refused"):         codes.Internal,
	}
	for err, want := range cases {
		if got := status.Code(toStatus(err)); got != want {
			t.Fatalf("toStatus(%v) = %s, want %s", err, got, want)
		}
	}
	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if msg := status.Convert(toStatus(errors.New("pq: password=hunter2"))).Message(); msg != "internal" {
		t.Fatalf("internal detail leaked: %q", msg)
	}
}
