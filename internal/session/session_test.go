package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/labapi"
)

type fakeUsers struct {
	byTG map[int64]*users.User
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, tgID int64) (*users.User, error) {
	return f.byTG[tgID], nil
}

func (f *fakeUsers) SaveSession(_ context.Context, tgID int64, token string, apiUserID int64, name string, roles []string, customers []users.Customer) error {
	u, ok := f.byTG[tgID]
	if !ok {
		u = &users.User{TelegramID: tgID, FirstTimeSetup: true}
		f.byTG[tgID] = u
	}
	u.APIToken, u.APIUserID, u.DisplayName, u.Roles, u.Customers = token, apiUserID, name, roles, customers
	return nil
}

func (f *fakeUsers) ClearSession(_ context.Context, tgID int64) error {
	if u := f.byTG[tgID]; u != nil {
		u.APIToken, u.APIUserID = "", 0
	}
	return nil
}

func (f *fakeUsers) SetSelectedLab(_ context.Context, tgID, labID int64) error {
	f.byTG[tgID].SelectedLabID = labID
	return nil
}

func (f *fakeUsers) SetDefaultEntity(_ context.Context, tgID, entityID int64) error {
	f.byTG[tgID].DefaultEntityID = entityID
	f.byTG[tgID].FirstTimeSetup = false
	return nil
}

type fakeProfiles struct {
	p   *labapi.Profile
	err error
}

func (f fakeProfiles) Profile(context.Context, string) (*labapi.Profile, error) { return f.p, f.err }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRoleFromRoles(t *testing.T) {
	tests := []struct {
		roles []string
		want  Role
	}{
		{[]string{"doctor"}, RoleDoctor},
		{[]string{"Doctor ", "office_admin"}, RoleOfficeAdmin},
		{[]string{"office_admin", "lab_admin"}, RoleLabAdmin},
		{[]string{"billing"}, RoleOther},
		{nil, RoleOther},
	}
	for _, tt := range tests {
		if got := RoleFromRoles(tt.roles); got != tt.want {
			t.Errorf("RoleFromRoles(%v) = %s, want %s", tt.roles, got, tt.want)
		}
	}
}

func TestPrimaryCustomerID(t *testing.T) {
	c := Context{Customers: []users.Customer{{ID: 1}, {ID: 2, IsPrimary: true}}}
	if got := c.PrimaryCustomerID(); got != 2 {
		t.Errorf("Expected primary 2, got %d", got)
	}
	c = Context{Customers: []users.Customer{{ID: 9}}}
	if got := c.PrimaryCustomerID(); got != 9 {
		t.Errorf("Expected fallback to first customer 9, got %d", got)
	}
	if got := (Context{}).PrimaryCustomerID(); got != 0 {
		t.Errorf("Expected 0 without customers, got %d", got)
	}
}

func TestLoginAndResolve(t *testing.T) {
	repo := &fakeUsers{byTG: map[int64]*users.User{}}
	r := NewResolver(repo, fakeProfiles{p: &labapi.Profile{
		ID: 5, Name: "Olga", Roles: []string{"office_admin"},
		Customers: []labapi.Customer{{ID: 12, Name: "Smile", IsPrimary: true}},
	}}, discard())

	if _, err := r.Resolve(context.Background(), 100); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("Expected ErrNotLoggedIn, got %v", err)
	}

	sc, err := r.Login(context.Background(), 100, " tok ")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sc.Role != RoleOfficeAdmin || sc.UserID != 5 || sc.Token != "tok" || sc.PrimaryCustomerID() != 12 {
		t.Errorf("Unexpected context %+v", sc)
	}
	if !sc.FirstTimeSetup {
		t.Error("Expected first-time setup for a fresh user")
	}

	if err := r.ConfirmDefault(context.Background(), 100, 7); err != nil {
		t.Fatal(err)
	}
	sc, _ = r.Resolve(context.Background(), 100)
	if sc.FirstTimeSetup || sc.DefaultEntityID != 7 {
		t.Errorf("Expected default 7 and setup closed, got %+v", sc)
	}
}

func TestLoginRejectsBadToken(t *testing.T) {
	repo := &fakeUsers{byTG: map[int64]*users.User{}}
	r := NewResolver(repo, fakeProfiles{err: labapi.ErrUnauthorized}, discard())
	if _, err := r.Login(context.Background(), 1, "bad"); !errors.Is(err, labapi.ErrUnauthorized) {
		t.Errorf("Expected unauthorized, got %v", err)
	}
	if _, err := r.Login(context.Background(), 1, "  "); err == nil {
		t.Error("Expected empty token to be rejected")
	}
}
