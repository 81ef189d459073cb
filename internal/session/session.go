// Package session resolves who is driving the bot: the linked lab API
// account, its role and customers, and the sticky wizard preferences.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/labapi"
)

type Role string

const (
	RoleLabAdmin    Role = "lab_admin"
	RoleOfficeAdmin Role = "office_admin"
	RoleDoctor      Role = "doctor"
	RoleOther       Role = "other"
)

// RoleFromRoles picks the effective role. Lab admin wins over office admin,
// which wins over doctor.
func RoleFromRoles(roles []string) Role {
	norm := make([]string, 0, len(roles))
	for _, r := range roles {
		norm = append(norm, strings.ToLower(strings.TrimSpace(r)))
	}
	for _, r := range []Role{RoleLabAdmin, RoleOfficeAdmin, RoleDoctor} {
		if slices.Contains(norm, string(r)) {
			return r
		}
	}
	return RoleOther
}

var ErrNotLoggedIn = errors.New("session: not logged in")

// Context is resolved once when a wizard opens and passed into it.
type Context struct {
	TelegramID      int64
	UserID          int64
	Name            string
	Role            Role
	Customers       []users.Customer
	SelectedLabID   int64
	DefaultEntityID int64
	FirstTimeSetup  bool
	Token           string
}

func (c Context) PrimaryCustomerID() int64 {
	for _, cu := range c.Customers {
		if cu.IsPrimary {
			return cu.ID
		}
	}
	if len(c.Customers) > 0 {
		return c.Customers[0].ID
	}
	return 0
}

// ChoosesOffice reports whether step one lists offices rather than labs.
func (c Context) ChoosesOffice() bool { return c.Role == RoleLabAdmin }

type UserRepo interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*users.User, error)
	SaveSession(ctx context.Context, tgID int64, token string, apiUserID int64, name string, roles []string, customers []users.Customer) error
	ClearSession(ctx context.Context, tgID int64) error
	SetSelectedLab(ctx context.Context, tgID, labID int64) error
	SetDefaultEntity(ctx context.Context, tgID, entityID int64) error
}

// ProfileSource looks up the profile behind an API token.
type ProfileSource interface {
	Profile(ctx context.Context, token string) (*labapi.Profile, error)
}

// ClientProfiles adapts a labapi.Client to ProfileSource.
type ClientProfiles struct{ Client *labapi.Client }

func (p ClientProfiles) Profile(ctx context.Context, token string) (*labapi.Profile, error) {
	return p.Client.WithToken(token).Me(ctx)
}

type Resolver struct {
	users    UserRepo
	profiles ProfileSource
	log      *slog.Logger
}

func NewResolver(repo UserRepo, profiles ProfileSource, log *slog.Logger) *Resolver {
	return &Resolver{users: repo, profiles: profiles, log: log.With("component", "session")}
}

// Login validates the token against the lab API and stores the profile.
func (r *Resolver) Login(ctx context.Context, tgID int64, token string) (*Context, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("session: empty token")
	}
	p, err := r.profiles.Profile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	customers := make([]users.Customer, 0, len(p.Customers))
	for _, c := range p.Customers {
		customers = append(customers, users.Customer{ID: c.ID, Name: c.Name, IsPrimary: c.IsPrimary})
	}
	if err := r.users.SaveSession(ctx, tgID, token, p.ID, p.Name, p.Roles, customers); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	r.log.Info("user logged in", "tg_id", tgID, "api_user_id", p.ID, "role", RoleFromRoles(p.Roles))
	return r.Resolve(ctx, tgID)
}

func (r *Resolver) Logout(ctx context.Context, tgID int64) error {
	return r.users.ClearSession(ctx, tgID)
}

func (r *Resolver) Resolve(ctx context.Context, tgID int64) (*Context, error) {
	u, err := r.users.GetByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if !u.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	return &Context{
		TelegramID:      tgID,
		UserID:          u.APIUserID,
		Name:            u.DisplayName,
		Role:            RoleFromRoles(u.Roles),
		Customers:       u.Customers,
		SelectedLabID:   u.SelectedLabID,
		DefaultEntityID: u.DefaultEntityID,
		FirstTimeSetup:  u.FirstTimeSetup,
		Token:           u.APIToken,
	}, nil
}

func (r *Resolver) RememberLab(ctx context.Context, tgID, labID int64) error {
	return r.users.SetSelectedLab(ctx, tgID, labID)
}

func (r *Resolver) ConfirmDefault(ctx context.Context, tgID, entityID int64) error {
	return r.users.SetDefaultEntity(ctx, tgID, entityID)
}
