package slip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/metrics"
)

// TransitionKey is the fixed key the slip is cached under for the
// case-design page.
const TransitionKey = "caseDesignSlip"

// Catalog is the product side of the lab API the assembler depends on.
type Catalog interface {
	Products(ctx context.Context, labID int64) ([]labapi.Product, error)
	Detail(ctx context.Context, productID, labID int64) (*labapi.ProductDetail, error)
}

// Store is the system of record the case-design page reads.
type Store interface {
	Set(ctx context.Context, owner int64, p *Payload) error
}

// PageCache survives a full page reload. Get returns nil data when the
// key is absent.
type PageCache interface {
	Put(ctx context.Context, owner int64, key string, data []byte) error
	Get(ctx context.Context, owner int64, key string) ([]byte, error)
}

// Navigator opens the case-design page for owner.
type Navigator interface {
	OnCaseDesign(owner int64) bool
	Open(ctx context.Context, owner int64, p *Payload, reload bool) error
}

// Request carries the wizard selections and loader caches at confirm time.
type Request struct {
	Owner int64

	PatientName string
	Doctor      Doctor
	LabID       int64
	OfficeID    int64
	Labs        []labapi.Entity

	// ProductLabID is the lab the catalog was loaded for; SessionLabID is
	// the one remembered in the session. Re-fetches use ProductLabID, then
	// LabID, then SessionLabID.
	ProductLabID int64
	SessionLabID int64
	Catalog      []labapi.Product
	ProductID    int64
	ProductName  string

	StageSelection []string
	Arch           Arch

	OnDone func(*Payload)
}

type Result struct {
	Payload  *Payload
	Retried  bool
	Verified bool
}

type Assembler struct {
	catalog     Catalog
	store       Store
	cache       PageCache
	nav         Navigator
	extractions *ExtractionCache
	now         func() time.Time
	log         *slog.Logger
}

func NewAssembler(catalog Catalog, store Store, cache PageCache, nav Navigator, ex *ExtractionCache, log *slog.Logger) *Assembler {
	if ex == nil {
		ex = NewExtractionCache()
	}
	return &Assembler{
		catalog:     catalog,
		store:       store,
		cache:       cache,
		nav:         nav,
		extractions: ex,
		now:         time.Now,
		log:         log.With("component", "assembler"),
	}
}

func (a *Assembler) Extractions() *ExtractionCache { return a.extractions }

// Validate checks the three fields a slip cannot exist without.
func Validate(r Request) error {
	switch {
	case !ValidPatientName(r.PatientName):
		return ErrMissingPatient
	case r.Doctor.ID == 0:
		return ErrMissingDoctor
	case r.LabID == 0:
		return ErrMissingLab
	}
	return nil
}

// Assemble builds the slip, persists it to the store and the page cache,
// verifies the cache write and opens the case-design page. Validation
// errors abort before anything is written; a failed verification is
// logged and navigation proceeds.
func (a *Assembler) Assemble(ctx context.Context, r Request) (*Result, error) {
	log := a.log.With("owner", r.Owner)
	if err := Validate(r); err != nil {
		metrics.Assembly.WithLabelValues("invalid").Inc()
		log.Warn("assembly aborted", "err", err)
		return nil, err
	}

	catalog, err := a.ensureCatalog(ctx, r)
	if err != nil {
		metrics.Assembly.WithLabelValues("no_products").Inc()
		log.Warn("assembly aborted", "err", err)
		return nil, err
	}

	lab := resolveLab(r.LabID, r.Labs)

	if r.ProductID == 0 {
		metrics.Assembly.WithLabelValues("no_products").Inc()
		return nil, ErrNoProducts
	}
	entry, ok := findProduct(catalog, r.ProductID)
	if !ok {
		// the re-fetched page may not hold the selection; detail fills it in
		log.Warn("selected product missing from catalog", "product_id", r.ProductID)
		entry = labapi.Product{ID: r.ProductID, Name: r.ProductName}
	}
	info := InfoFromCatalog(entry)
	detail, err := a.catalog.Detail(ctx, r.ProductID, labFor(r))
	if err != nil {
		log.Warn("product detail fetch failed, using catalog data", "product_id", r.ProductID, "err", err)
	} else {
		info = MergeDetail(info, detail)
	}
	a.extractions.PutProduct(info.ID, info.Extractions)

	at := a.now()
	res := Resolved{
		PatientName:    r.PatientName,
		Doctor:         r.Doctor,
		Lab:            lab,
		OfficeID:       r.OfficeID,
		Product:        info,
		StageSelection: r.StageSelection,
		Arch:           r.Arch,
		SnapshotID:     SnapshotID(info.ID, at),
		At:             at,
	}
	if len(info.Extractions) == 0 {
		res.Extractions, _ = a.extractions.Lookup(res.SnapshotID)
	}
	payload := BuildPayload(res)

	if err := a.store.Set(ctx, r.Owner, payload); err != nil {
		log.Error("slip store write failed", "err", err)
	}
	out := &Result{Payload: payload}
	if err := a.putCache(ctx, r.Owner, payload); err != nil {
		log.Error("transition cache write failed", "err", err)
	}

	out.Verified = a.verify(ctx, r.Owner)
	if !out.Verified {
		out.Retried = true
		metrics.Assembly.WithLabelValues("verify_retry").Inc()
		log.Warn("transition cache verification failed, rewriting")
		retry := BuildPayload(res)
		if err := a.putCache(ctx, r.Owner, retry); err != nil {
			log.Error("transition cache rewrite failed", "err", err)
		}
		out.Verified = a.verify(ctx, r.Owner)
		if !out.Verified {
			metrics.Assembly.WithLabelValues("verify_failed").Inc()
			log.Error("transition cache still unverified, navigating anyway")
		}
	}
	if out.Verified {
		metrics.Assembly.WithLabelValues("ok").Inc()
	}

	if r.OnDone != nil {
		r.OnDone(payload)
	}
	if a.nav != nil {
		reload := a.nav.OnCaseDesign(r.Owner)
		if err := a.nav.Open(ctx, r.Owner, payload, reload); err != nil {
			log.Warn("navigation failed", "err", err)
		}
	}
	log.Info("slip assembled",
		"product_id", info.ID, "arch", payload.SelectedArch,
		"grade", payload.Products[0].MaxillaryConfig.Grade,
		"stage", payload.SelectedStage.Name, "retried", out.Retried)
	return out, nil
}

// ensureCatalog re-fetches the product list once, synchronously, when the
// one the wizard selected from is gone.
func (a *Assembler) ensureCatalog(ctx context.Context, r Request) ([]labapi.Product, error) {
	if len(r.Catalog) > 0 {
		return r.Catalog, nil
	}
	labID := labFor(r)
	if labID == 0 {
		return nil, ErrNoProducts
	}
	products, err := a.catalog.Products(ctx, labID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProducts, err)
	}
	if len(products) == 0 {
		return nil, ErrNoProducts
	}
	return products, nil
}

func (a *Assembler) putCache(ctx context.Context, owner int64, p *Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return a.cache.Put(ctx, owner, TransitionKey, data)
}

func (a *Assembler) verify(ctx context.Context, owner int64) bool {
	data, err := a.cache.Get(ctx, owner, TransitionKey)
	if err != nil || len(data) == 0 {
		return false
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return false
	}
	return len(p.Products) > 0
}

/*** HELPERS ***/

func labFor(r Request) int64 {
	switch {
	case r.ProductLabID != 0:
		return r.ProductLabID
	case r.LabID != 0:
		return r.LabID
	}
	return r.SessionLabID
}

func resolveLab(id int64, labs []labapi.Entity) Lab {
	for _, l := range labs {
		if l.ID == id {
			return Lab{ID: l.ID, Name: l.Name, City: l.City, State: l.State, LogoURL: l.LogoURL}
		}
	}
	return Lab{ID: id, Name: PlaceholderLabName}
}

func findProduct(catalog []labapi.Product, id int64) (labapi.Product, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return labapi.Product{}, false
}
