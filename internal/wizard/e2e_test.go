package wizard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Spok95/slip-bot/internal/domain/users"
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/slipstore"
)

// labAPI answers with the loosely shaped payloads the real backend sends.
func labAPI(t *testing.T) *labapi.Client {
	t.Helper()
	routes := map[string]string{
		"/v1/connections":                   `{"data":[{"lab":{"id":7,"name":"Acme Dental"},"status":"Accepted"}]}`,
		"/v1/customers/7/doctors":           `[{"id":3,"full_name":"Dr. Smith"}]`,
		"/v1/categories":                    `[{"id":1,"name":"Fixed Restoration"}]`,
		"/v1/categories/1/subcategories":    `[{"id":10,"sub_name":"Crowns"}]`,
		"/v1/labs/7/products":               `{"data":[{"id":99,"name":"Zirconia Crown","stages":[{"id":5,"name":"Finish"}],"grades":[{"id":2,"name":"Premium","is_default":"Yes"}]}]}`,
		"/v1/products/99":                   `{"data":{"id":99,"grades":[{"id":2,"name":"Premium","is_default":"Yes"}],"stages":[{"id":5,"name":"Finish"}]}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			t.Errorf("Unexpected request %s", r.URL)
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return labapi.New(labapi.Options{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 1000}, discard()).WithToken("tok")
}

func TestAddSlipEndToEnd(t *testing.T) {
	ctx := context.Background()
	sc := session.Context{
		TelegramID: 1, UserID: 50, Name: "Olga", Role: session.RoleOfficeAdmin,
		Customers: []users.Customer{{ID: 12, Name: "Smile Office", IsPrimary: true}},
	}
	store := slipstore.New(slipstore.NewMemory(), discard())
	cache := &mapCache{}
	nav := &fakeNav{}
	var completed *slip.Payload
	m := New(sc, Deps{
		Source: labAPI(t), Store: store, Cache: cache, Nav: nav, Log: discard(),
		OnComplete: func(_ int64, p *slip.Payload) { completed = p },
	}, Options{})

	m.Start(ctx)
	m.Wait()

	must(t, m.SelectLab(ctx, 7))
	if got := m.Snapshot().Step(); got != StepDoctor {
		t.Fatalf("Expected doctor step right after the lab click, got %s", got)
	}
	m.Wait()
	if v := m.Snapshot(); v.Step() != StepPatient || v.Session.Selection.DoctorName != "Dr. Smith" {
		t.Fatalf("Expected Dr. Smith auto-selected, got %s %+v", v.Step(), v.Session.Selection)
	}

	must(t, m.SubmitPatient(ctx, "Jane Doe"))
	m.Wait()
	must(t, m.SelectCategory(ctx, 1))
	m.Wait()
	if subs := m.Snapshot().Subcategories; len(subs) != 1 || subs[0].Name != "Crowns" {
		t.Fatalf("Expected Crowns, got %v", subs)
	}
	must(t, m.SelectSubcategory(ctx, 10))
	m.Wait()
	must(t, m.SelectProduct(ctx, 99))
	if got := m.Snapshot().Step(); got != StepStage {
		t.Fatalf("Expected stage step before detail arrives, got %s", got)
	}
	m.Wait()
	must(t, m.SelectStage(ctx, "Finish"))
	if got := m.Snapshot().Step(); got != StepArch {
		t.Fatalf("Expected arch modal, got %s", got)
	}
	must(t, m.SelectArch(slip.ArchBoth))
	res, err := m.ConfirmArch(ctx)
	must(t, err)

	p := res.Payload
	if p.FormData.Patient != "Jane Doe" || p.FormData.Doctor != "Dr. Smith" || p.FormData.Lab != "Acme Dental" {
		t.Errorf("Unexpected form data %+v", p.FormData)
	}
	if p.SelectedArch != slip.ArchBoth || p.SelectedProduct == nil || p.SelectedProduct.Name != "Zirconia Crown" {
		t.Errorf("Unexpected selection %+v", p)
	}
	pr := p.Products[0]
	if pr.MaxillaryConfig.Grade != "Premium" || pr.MaxillaryConfig.Stage != "Finish" {
		t.Errorf("Unexpected maxillary config %+v", pr.MaxillaryConfig)
	}
	if pr.MandibularConfig.Grade != pr.MaxillaryConfig.Grade || pr.MandibularConfig.Stage != pr.MaxillaryConfig.Stage {
		t.Errorf("Expected an equivalent mandibular config, got %+v", pr.MandibularConfig)
	}
	if m.Snapshot().Step() != StepComplete || completed != p || len(nav.opened) != 1 {
		t.Error("Expected completion callback, navigation and the complete state")
	}

	stored, err := store.Get(ctx, 1)
	if err != nil || stored == nil || stored.FormData.Patient != "Jane Doe" {
		t.Errorf("Expected the slip in the store, got %+v, %v", stored, err)
	}
	var cached slip.Payload
	if err := json.Unmarshal(cache.data[slip.TransitionKey], &cached); err != nil || len(cached.Products) != 1 {
		t.Errorf("Expected the slip in the transition cache, got %+v, %v", cached, err)
	}
}
