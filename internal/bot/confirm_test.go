package bot

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

type crownLab struct{}

func (crownLab) ConnectedLabs(context.Context) ([]labapi.Entity, error) {
	return []labapi.Entity{{ID: 1, Name: "North Lab"}}, nil
}
func (crownLab) ConnectedOffices(context.Context) ([]labapi.Entity, error) { return nil, nil }
func (crownLab) OfficeDoctors(context.Context, int64) ([]labapi.Doctor, error) {
	return []labapi.Doctor{{ID: 2, Name: "Dr. Smith"}}, nil
}
func (crownLab) LabProducts(context.Context, int64, labapi.ProductQuery) ([]labapi.Product, error) {
	return []labapi.Product{{ID: 99, Name: "Zirconia crown"}}, nil
}
func (crownLab) ProductDetail(context.Context, int64, int64) (*labapi.ProductDetail, error) {
	return nil, nil
}
func (crownLab) Categories(context.Context) ([]labapi.Category, error) { return nil, nil }
func (crownLab) Subcategories(context.Context, int64) ([]labapi.Subcategory, error) {
	return nil, nil
}

// gatedStore holds every write until release is closed.
type gatedStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) Set(ctx context.Context, _ int64, _ *slip.Payload) error {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type memPages struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (p *memPages) Put(_ context.Context, _ int64, key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = data
	return nil
}

func (p *memPages) Get(_ context.Context, _ int64, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[key], nil
}

func TestConfirmDoesNotBlockUpdates(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, newFakeStates())
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}

	sc := session.Context{TelegramID: 7, Role: session.RoleDoctor, SelectedLabID: 1}
	s := wizard.Session{
		Step: wizard.StepArch,
		Role: session.RoleDoctor,
		Page: 1,
		Selection: wizard.Selection{
			LabID: 1, LabName: "North Lab",
			DoctorID: 2, DoctorName: "Dr. Smith",
			PatientName: "Jane Doe",
			ProductID:   99,
			Product:     &labapi.Product{ID: 99, Name: "Zirconia crown"},
			Arch:        slip.ArchUpper,
		},
	}
	cw := &chatWizard{chatID: 7, mid: 10}
	cw.m = wizard.Restore(sc, wizard.Deps{
		Source:      crownLab{},
		Store:       store,
		Cache:       &memPages{data: map[string][]byte{}},
		Nav:         b,
		Extractions: b.d.Extractions,
		Observer:    wizard.ObserverFunc(func(wizard.View) { b.refresh(cw) }),
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, wizard.Options{}, s)
	b.track(cw)
	cw.m.Start(context.Background())
	cw.m.Wait()

	handled := make(chan struct{})
	go func() {
		b.handleCallback(context.Background(), callback(7, 10, "wz:confirm"))
		close(handled)
	}()

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("Expected the assembly to reach the store")
	}
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("Expected the callback to return while the slip is still being saved")
	}
	if !slices.Equal(api.callbackAnswers(), []string{"Saving…"}) {
		t.Errorf("Expected Saving… answer, got %v", api.callbackAnswers())
	}
	if !cw.m.Snapshot().Session.Assembling {
		t.Error("Expected the wizard to still be assembling")
	}

	// a second press while saving is refused by the wizard, not queued
	b.handleCallback(context.Background(), callback(7, 10, "wz:confirm"))

	close(store.release)
	b.bg.Wait()
	cw.m.Wait()

	if got := cw.m.Snapshot().Step(); got != wizard.StepComplete {
		t.Errorf("Expected step %s, got %s", wizard.StepComplete, got)
	}
	if !b.OnCaseDesign(7) {
		t.Error("Expected the case-design page to be open")
	}
}
