package grpcserver

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/gatekeeper/internal/model"
)

func TestWithPrincipal_And_PrincipalFromCtx(t *testing.T) {
	t.Parallel()

	if _, ok := PrincipalFromCtx(context.Background()); ok {
		t.Fatalf("expected no principal in empty ctx")
	}

	want := model.Principal{AccountID: uuid.Must(uuid.NewV4()), Username: "alice", Role: model.RoleAdmin}
	got, ok := PrincipalFromCtx(WithPrincipal(context.Background(), want))
	if !ok || got.AccountID != want.AccountID || got.Role != model.RoleAdmin {
		t.Fatalf("mismatch: got %+v ok=%v", got, ok)
	}

	type ctxKey string
	const principalKey ctxKey = "gk.principal"
	bad := context.WithValue(context.Background(), principalKey, "not-a-principal")
	if _, ok := PrincipalFromCtx(bad); ok {
		t.Fatalf("expected miss on foreign key")
	}
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func Test_bearerTokenFromMD_MultipleHeaders(t *testing.T) {
	t.Parallel()

	md := metadata.MD{}
	md.Append("authorization", "Basic zzz")
	md.Append("authorization", "  bEaReR   tok  ")
	got, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), md))
	if err != nil || got != "tok" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}
