package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/and161185/gatekeeper/internal/server/grpc"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func promptPassword(w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(w, label+": "); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// secret returns v or prompts for it when empty.
func secret(v string, w io.Writer, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return promptPassword(w, label)
}

// expiryOf reads exp from a token without verifying it; the server is the
// only verifier, the CLI just avoids sending stale tokens.
func expiryOf(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func printJSON(w io.Writer, s *structpb.Struct) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(s.AsMap())
}

func str(s *structpb.Struct, key string) string { return s.GetFields()[key].GetStringValue() }

func mustStruct(m map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	if err != nil {
		panic(err)
	}
	return s
}

// command runs one subcommand against an established client.
type command struct {
	usage string
	auth  bool // needs a stored access token
	run   func(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error
}

var commands = map[string]command{
	"register": {usage: "register -u <username> -e <email> [-p <password>]", run: cmdRegister},
	"login":    {usage: "login -i <username|email> [-p <password>]   (saves tokens)", run: cmdLogin},
	"refresh":  {usage: "refresh                                     (renews access token)", run: cmdRefresh},
	"logout":   {usage: "logout                                      (forgets tokens)", run: cmdLogout},
	"me":       {usage: "me", auth: true, run: cmdCall(grpcserver.MethodMe, nil)},
	"passwd":   {usage: "passwd [-current <pw>] [-new <pw>]", auth: true, run: cmdPasswd},
	"mute":     {usage: "mute -target <uuid> -for <1d|12h|permanent> [-reason <text>]", auth: true, run: cmdRestrict(grpcserver.MethodMute)},
	"unmute":   {usage: "unmute -target <uuid>", auth: true, run: cmdTarget(grpcserver.MethodUnmute)},
	"ban":      {usage: "ban -target <uuid> -for <1d|12h|permanent> [-reason <text>]", auth: true, run: cmdRestrict(grpcserver.MethodBan)},
	"unban":    {usage: "unban -target <uuid>", auth: true, run: cmdTarget(grpcserver.MethodUnban)},
	"role":     {usage: "role -target <uuid> -role <user|moderator|admin>", auth: true, run: cmdRole},
	"delete":   {usage: "delete -target <uuid>", auth: true, run: cmdTarget(grpcserver.MethodDeleteAccount)},
}

func cmdRegister(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	u := fs.String("u", "", "username")
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *u == "" || *e == "" {
		return errors.New("need -u and -e")
	}
	pw, err := secret(*p, out, "Password")
	if err != nil {
		return err
	}
	resp, err := cl.Call(ctx, grpcserver.MethodRegister, mustStruct(map[string]any{
		"username": *u, "email": *e, "password": pw,
	}))
	if err != nil {
		return err
	}
	printJSON(out, resp)
	return nil
}

func cmdLogin(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	id := fs.String("i", "", "username or email")
	p := fs.String("p", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need -i")
	}
	pw, err := secret(*p, out, "Password")
	if err != nil {
		return err
	}
	resp, err := cl.Call(ctx, grpcserver.MethodLogin, mustStruct(map[string]any{
		"identifier": *id, "password": pw,
	}))
	if err != nil {
		return err
	}
	access, refresh := str(resp, "access_token"), str(resp, "refresh_token")
	if err := saveTokens(tokenFile{
		AccessToken:      access,
		AccessExpiresAt:  expiryOf(access),
		RefreshToken:     refresh,
		RefreshExpiresAt: expiryOf(refresh),
	}); err != nil {
		return err
	}
	acc := resp.GetFields()["account"].GetStructValue()
	fmt.Fprintf(out, "logged in as %s (%s)\n", str(acc, "username"), str(acc, "role"))
	return nil
}

func cmdRefresh(ctx context.Context, cl *grpcserver.Client, _ []string, out io.Writer) error {
	rt, err := loadRefresh()
	if err != nil {
		return err
	}
	resp, err := cl.Call(ctx, grpcserver.MethodRefresh, mustStruct(map[string]any{"refresh_token": rt}))
	if err != nil {
		return err
	}
	access := str(resp, "access_token")
	if err := updateAccess(access, expiryOf(access)); err != nil {
		return err
	}
	fmt.Fprintln(out, "access token renewed")
	return nil
}

func cmdLogout(context.Context, *grpcserver.Client, []string, io.Writer) error {
	return clearTokens()
}

func cmdPasswd(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	cur := fs.String("current", "", "current password (prompted when empty)")
	next := fs.String("new", "", "new password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := secret(*cur, out, "Current password")
	if err != nil {
		return err
	}
	n, err := secret(*next, out, "New password")
	if err != nil {
		return err
	}
	resp, err := cl.Call(ctx, grpcserver.MethodChangePassword, mustStruct(map[string]any{
		"current_password": c, "new_password": n,
	}))
	if err != nil {
		return err
	}
	access, refresh := str(resp, "access_token"), str(resp, "refresh_token")
	if err := saveTokens(tokenFile{
		AccessToken:      access,
		AccessExpiresAt:  expiryOf(access),
		RefreshToken:     refresh,
		RefreshExpiresAt: expiryOf(refresh),
	}); err != nil {
		return err
	}
	fmt.Fprintln(out, "password changed; other sessions are signed out")
	return nil
}

func cmdCall(method string, in map[string]any) func(context.Context, *grpcserver.Client, []string, io.Writer) error {
	return func(ctx context.Context, cl *grpcserver.Client, _ []string, out io.Writer) error {
		var req *structpb.Struct
		if in != nil {
			req = mustStruct(in)
		}
		resp, err := cl.Call(ctx, method, req)
		if err != nil {
			return err
		}
		printJSON(out, resp)
		return nil
	}
}

func targetFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, fs.String("target", "", "target account id")
}

func cmdTarget(method string) func(context.Context, *grpcserver.Client, []string, io.Writer) error {
	return func(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
		fs, target := targetFlags(strings.ToLower(method))
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *target == "" {
			return errors.New("need -target")
		}
		return cmdCall(method, map[string]any{"target_id": *target})(ctx, cl, nil, out)
	}
}

func cmdRestrict(method string) func(context.Context, *grpcserver.Client, []string, io.Writer) error {
	return func(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
		fs, target := targetFlags(strings.ToLower(method))
		dur := fs.String("for", "", "duration: 1d, 12h, permanent")
		reason := fs.String("reason", "", "reason shown to the account")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *target == "" || *dur == "" {
			return errors.New("need -target and -for")
		}
		return cmdCall(method, map[string]any{
			"target_id": *target, "duration": *dur, "reason": *reason,
		})(ctx, cl, nil, out)
	}
}

func cmdRole(ctx context.Context, cl *grpcserver.Client, args []string, out io.Writer) error {
	fs, target := targetFlags("role")
	role := fs.String("role", "", "user | moderator | admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" || *role == "" {
		return errors.New("need -target and -role")
	}
	return cmdCall(grpcserver.MethodChangeRole, map[string]any{"target_id": *target, "role": *role})(ctx, cl, nil, out)
}
