package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/service"
)

// bootstrapSuperAdmin creates the single super_admin account. ChangeRole can
// never grant super_admin, so this is the only way one comes to exist.
func bootstrapSuperAdmin(ctx context.Context, repo repository.AccountRepository, h service.Hasher, username, email, password string) (*model.Account, error) {
	in := service.RegisterInput{
		Username: strings.TrimSpace(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	a, err := service.NewAccount(h, in.Username, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	a.IsAdmin = true
	a.IsSuperAdmin = true
	if err := repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create super_admin: %w", err)
	}
	return a, nil
}
