// Package seed applies the RBAC matrix and the optional bootstrap accounts.
// Running it repeatedly is safe.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/weighbridge-ops/internal/config"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

//go:embed rbac.yaml
var defaultMatrix []byte

// Matrix is the permission catalogue and the permissions granted to each
// role.
type Matrix struct {
	Permissions []string            `yaml:"permissions"`
	Roles       map[string][]string `yaml:"roles"`
}

// DefaultMatrix returns the embedded matrix.
func DefaultMatrix() (Matrix, error) {
	return ParseMatrix(defaultMatrix)
}

// ParseMatrix decodes and checks a matrix. Every granted permission must be
// in the catalogue and both built-in roles must be present.
func ParseMatrix(data []byte) (Matrix, error) {
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Matrix{}, fmt.Errorf("parse rbac matrix: %w", err)
	}
	known := make(map[string]bool, len(m.Permissions))
	for _, p := range m.Permissions {
		known[p] = true
	}
	for _, role := range []string{model.RoleAdmin, model.RoleUser} {
		if _, ok := m.Roles[role]; !ok {
			return Matrix{}, fmt.Errorf("rbac matrix: role %s missing", role)
		}
	}
	for role, perms := range m.Roles {
		for _, p := range perms {
			if !known[p] {
				return Matrix{}, fmt.Errorf("rbac matrix: role %s granted unknown permission %s", role, p)
			}
		}
	}
	return m, nil
}

// Account is a bootstrap login created or refreshed by the seeder.
type Account struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// AccountsFromConfig returns the admin and normal accounts whose email and
// password are both configured.
func AccountsFromConfig(sc config.SeedConfig) []Account {
	var out []Account
	if sc.AdminEmail != "" && sc.AdminPassword != "" {
		out = append(out, Account{Name: "Admin User", Email: sc.AdminEmail, Password: sc.AdminPassword, Role: model.RoleAdmin})
	}
	if sc.UserEmail != "" && sc.UserPassword != "" {
		out = append(out, Account{Name: "Normal User", Email: sc.UserEmail, Password: sc.UserPassword, Role: model.RoleUser})
	}
	return out
}

// Seeder writes a Matrix and bootstrap accounts through the repositories.
type Seeder struct {
	Roles      *repository.RoleRepo
	Users      *repository.UserRepo
	BcryptCost int
	Log        *zap.Logger

	// Prune removes grants the matrix does not list. Without it the seeder
	// only adds.
	Prune bool

	// OnMatrixChange runs after the matrix is written, e.g. to flush the
	// permission cache and cached role responses.
	OnMatrixChange []func(ctx context.Context) error
}

// Seed applies m, then accounts.
func (s *Seeder) Seed(ctx context.Context, m Matrix, accounts []Account) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	permIDs := make(map[string]string, len(m.Permissions))
	for _, name := range m.Permissions {
		p, err := s.Roles.UpsertPermission(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert permission %s: %w", name, err)
		}
		permIDs[name] = p.ID
	}

	roleNames := make([]string, 0, len(m.Roles))
	for name := range m.Roles {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)

	for _, name := range roleNames {
		role, err := s.Roles.UpsertRole(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert role %s: %w", name, err)
		}
		want := make(map[string]bool, len(m.Roles[name]))
		for _, p := range m.Roles[name] {
			want[p] = true
			if err := s.Roles.Grant(ctx, role.ID, permIDs[p]); err != nil {
				return fmt.Errorf("grant %s to %s: %w", p, name, err)
			}
		}
		if s.Prune {
			if err := s.prune(ctx, role, want, log); err != nil {
				return err
			}
		}
		log.Info("role seeded", zap.String("role", name), zap.Int("permissions", len(want)))
	}

	for _, fn := range s.OnMatrixChange {
		if err := fn(ctx); err != nil {
			log.Warn("post-seed invalidation failed", zap.Error(err))
		}
	}

	for _, a := range accounts {
		if err := s.seedAccount(ctx, a); err != nil {
			return fmt.Errorf("seed account %s: %w", a.Email, err)
		}
		log.Info("account seeded", zap.String("email", repository.NormalizeEmail(a.Email)), zap.String("role", a.Role))
	}
	return nil
}

func (s *Seeder) prune(ctx context.Context, role *model.Role, want map[string]bool, log *zap.Logger) error {
	have, err := s.Roles.PermissionNames(ctx, role.Name)
	if err != nil {
		return err
	}
	for _, p := range have {
		if want[p] {
			continue
		}
		perm, err := s.Roles.UpsertPermission(ctx, p)
		if err != nil {
			return err
		}
		if err := s.Roles.RevokePermission(ctx, role.ID, perm.ID); err != nil {
			return fmt.Errorf("revoke %s from %s: %w", p, role.Name, err)
		}
		log.Info("grant pruned", zap.String("role", role.Name), zap.String("permission", p))
	}
	return nil
}

// seedAccount creates the account, or resets the password and role of an
// existing one.
func (s *Seeder) seedAccount(ctx context.Context, a Account) error {
	role, err := s.Roles.GetByName(ctx, a.Role)
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(a.Password, s.BcryptCost)
	if err != nil {
		return err
	}

	existing, err := s.Users.GetByEmail(ctx, a.Email)
	switch {
	case err == nil:
		return s.Users.Update(ctx, existing.ID, repository.UserUpdate{RoleID: &role.ID, PasswordHash: &hash})
	case errors.Is(err, repository.ErrNotFound):
		return s.Users.Create(ctx, &model.User{
			Name:         strings.TrimSpace(a.Name),
			Email:        a.Email,
			PasswordHash: hash,
			RoleID:       role.ID,
			RoleName:     role.Name,
		})
	default:
		return err
	}
}
