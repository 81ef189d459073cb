package labapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 1000, Lang: "en"}, log).WithToken("tok")
}

func TestConnectedLabsNormalisesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Expected bearer header, got %q", got)
		}
		if r.URL.Query().Get("type") != "lab" {
			t.Errorf("Expected type=lab, got %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"data":[{"lab":{"id":"7","name":"Acme Dental","city":"Austin"},"status":"Accepted"},{"lab":null,"status":"Pending"}]}`)
	})

	labs, err := c.ConnectedLabs(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(labs) != 1 {
		t.Fatalf("Expected 1 lab, got %d", len(labs))
	}
	if labs[0].ID != 7 || labs[0].Name != "Acme Dental" || labs[0].Status != "Accepted" {
		t.Errorf("Unexpected lab %+v", labs[0])
	}
}

func TestOfficeDoctorsNameVariants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/customers/12/doctors" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":3,"full_name":"Dr. Smith"},{"id":4,"first_name":"Ann","last_name":"Lee"}]`)
	})

	docs, err := c.OfficeDoctors(context.Background(), 12)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := []string{"Dr. Smith", "Ann Lee"}
	for i, d := range docs {
		if d.Name != want[i] {
			t.Errorf("doctor %d: expected %q, got %q", i, want[i], d.Name)
		}
	}
}

func TestLabProductsQueryAndImages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("subcategory_id") != "10" || q.Get("search") != "zir" || q.Get("per_page") != "8" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		if q.Has("grade") {
			t.Errorf("Empty filters must not be sent: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"data":[
			{"id":99,"name":"Zirconia Crown","image_url_url":"https://img/z.png","stage_type":"multiple",
			 "grades":[{"id":2,"name":"Premium","is_default":"Yes"}],"stages":[{"id":5,"name":"Finish","price":"120.50"}]},
			{"id":100,"name":"PFM","image":"https://img/p.png","category":{"id":1,"name":"Fixed Restoration"}}
		],"meta":{"current_page":1,"last_page":1}}`)
	})

	ps, err := c.LabProducts(context.Background(), 7, ProductQuery{PerPage: 8, SubcategoryID: 10, Search: "zir"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(ps))
	}
	if ps[0].ImageURL != "https://img/z.png" || ps[1].ImageURL != "https://img/p.png" {
		t.Errorf("Image fallbacks not applied: %q %q", ps[0].ImageURL, ps[1].ImageURL)
	}
	if ps[0].StageType != StageMultiple || ps[1].StageType != StageSingle {
		t.Errorf("Unexpected stage types %s %s", ps[0].StageType, ps[1].StageType)
	}
	if !ps[0].Grades[0].IsDefault {
		t.Error("Expected is_default Yes to map to true")
	}
	if ps[0].Stages[0].Price != 120.5 {
		t.Errorf("Expected price 120.5, got %v", ps[0].Stages[0].Price)
	}
	if ps[1].CategoryName != "Fixed Restoration" || ps[1].CategoryID != 1 {
		t.Errorf("Expected nested category to be flattened, got %+v", ps[1])
	}
}

func TestProductDetailExtractionShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"direct", `{"id":42,"extractions":[{"id":1,"name":"Missing"}]}`},
		{"nested data", `{"id":42,"data":{"extractions":[{"id":1,"name":"Missing"}]}}`},
		{"options", `{"id":42,"extraction_options":[{"id":1,"name":"Missing"}]}`},
		{"enveloped", `{"data":{"id":42,"extractions":[{"id":1,"name":"Missing"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("lab_id") != "7" {
					t.Errorf("Expected lab_id=7, got %s", r.URL.RawQuery)
				}
				_, _ = io.WriteString(w, tt.body)
			})
			d, err := c.ProductDetail(context.Background(), 42, 7)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if d == nil || d.ID != 42 {
				t.Fatalf("Unexpected detail %+v", d)
			}
			if len(d.Extractions) != 1 || d.Extractions[0].Name != "Missing" {
				t.Errorf("Expected one extraction, got %+v", d.Extractions)
			}
		})
	}
}

func TestSubcategoriesSubName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lang") != "en" {
			t.Errorf("Expected lang=en, got %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":10,"sub_name":"Crowns"}]`)
	})
	subs, err := c.Subcategories(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(subs) != 1 || subs[0].Name != "Crowns" || subs[0].CategoryID != 1 {
		t.Errorf("Unexpected subcategories %+v", subs)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := c.Categories(context.Background())
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	})
	_, err := c.Categories(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Errorf("Expected StatusError 502, got %v", err)
	}
}

func TestMeProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":5,"full_name":"Olga","roles":["office_admin"],"customers":[{"id":12,"name":"Smile Office","is_primary":true}]}}`)
	})
	p, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.ID != 5 || p.Name != "Olga" || len(p.Customers) != 1 || !p.Customers[0].IsPrimary {
		t.Errorf("Unexpected profile %+v", p)
	}
}

func TestResourceListAndToggle(t *testing.T) {
	status := "Active"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/grades":
			_, _ = io.WriteString(w, `{"data":[{"id":2,"name":"Premium","status":"Active"},{"id":1,"name":"Economy","status":"Inactive"}],"meta":{"current_page":1,"last_page":3,"total":25}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/grades/2":
			_, _ = io.WriteString(w, `{"id":2,"name":"Premium","status":"`+status+`"}`)
		case r.Method == http.MethodPut && r.URL.Path == "/v1/grades/2":
			status = "Inactive"
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	page, err := c.List(context.Background(), ResGrades, ListParams{Page: 1})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if page.LastPage != 3 || page.Total != 25 {
		t.Errorf("Unexpected meta %+v", page)
	}
	if page.Items[0].Name != "Economy" || page.Items[0].Active() {
		t.Errorf("Expected sorted list with inactive Economy first, got %+v", page.Items[0])
	}

	rec, err := c.ToggleStatus(context.Background(), ResGrades, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Active() {
		t.Errorf("Expected record to be inactive after toggle, got %q", rec.Status)
	}
}

func TestNewTimeout(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"unset stays unbounded", 0, 0},
		{"configured", 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{BaseURL: "http://lab", Timeout: tt.in}, log)
			if c.http.Timeout != tt.want {
				t.Errorf("Expected timeout %s, got %s", tt.want, c.http.Timeout)
			}
		})
	}
}

func TestSlowResponseWaitsForContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = io.WriteString(w, `[]`)
	})
	if _, err := c.Categories(context.Background()); err != nil {
		t.Errorf("Expected the slow response to be read, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Categories(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
