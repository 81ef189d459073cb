package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/loader"
	"github.com/Spok95/slip-bot/internal/metrics"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
)

// archKey schedules the delayed stage -> arch modal transition.
const archKey = "arch"

var (
	ErrNotAllowed   = errors.New("wizard: not allowed in this step")
	ErrInvalidInput = errors.New("wizard: invalid input")
	ErrClosed       = errors.New("wizard: closed")
)

// Source is the lab API surface the wizard reads reference data from.
type Source interface {
	ConnectedLabs(ctx context.Context) ([]labapi.Entity, error)
	ConnectedOffices(ctx context.Context) ([]labapi.Entity, error)
	OfficeDoctors(ctx context.Context, customerID int64) ([]labapi.Doctor, error)
	LabProducts(ctx context.Context, labID int64, q labapi.ProductQuery) ([]labapi.Product, error)
	ProductDetail(ctx context.Context, productID, labID int64) (*labapi.ProductDetail, error)
	Categories(ctx context.Context) ([]labapi.Category, error)
	Subcategories(ctx context.Context, categoryID int64) ([]labapi.Subcategory, error)
}

// Prefs persists the sticky per-user choices made in the first step.
type Prefs interface {
	RememberLab(ctx context.Context, tgID, labID int64) error
	ConfirmDefault(ctx context.Context, tgID, entityID int64) error
}

// Observer is told about every state change, including those caused by a
// fetch completing in the background.
type Observer interface {
	Changed(v View)
}

type ObserverFunc func(View)

func (f ObserverFunc) Changed(v View) { f(v) }

type Deps struct {
	Source      Source
	Prefs       Prefs
	Store       slip.Store
	Cache       slip.PageCache
	Nav         slip.Navigator
	Extractions *slip.ExtractionCache
	Observer    Observer
	// OnComplete runs once the slip is persisted, before navigation.
	OnComplete func(owner int64, p *slip.Payload)
	Log        *slog.Logger
}

type Options struct {
	Debounce        time.Duration
	ArchDelay       time.Duration
	ProductsPerPage int
}

type Machine struct {
	sc   session.Context
	deps Deps
	opts Options
	log  *slog.Logger
	deb  *loader.Debouncer

	labs          *loader.Loader[bool, []labapi.Entity]
	doctors       *loader.Loader[int64, []labapi.Doctor]
	categories    *loader.Loader[struct{}, []labapi.Category]
	subcategories *loader.Loader[int64, []labapi.Subcategory]
	products      *loader.Loader[productParams, []labapi.Product]
	detail        *loader.Loader[detailParams, *labapi.ProductDetail]

	mu     sync.Mutex
	s      Session
	closed bool
	result *slip.Payload
}

// New opens a wizard for the resolved session context. Call Start to run
// the first step's fetch.
func New(sc session.Context, deps Deps, opts Options) *Machine {
	return build(sc, deps, opts, newSession(sc))
}

// Restore rebuilds a wizard from a persisted session. Call Start to
// refetch the current step's data.
func Restore(sc session.Context, deps Deps, opts Options, s Session) *Machine {
	s.Role = sc.Role
	if s.Page < 1 {
		s.Page = 1
	}
	s.Loading = map[string]bool{}
	s.Errors = map[Step]string{}
	if s.Step < StepLab || s.Step >= StepComplete {
		s = newSession(sc)
	}
	return build(sc, deps, opts, s)
}

func build(sc session.Context, deps Deps, opts Options, s Session) *Machine {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Extractions == nil {
		deps.Extractions = slip.NewExtractionCache()
	}
	if opts.ProductsPerPage <= 0 {
		opts.ProductsPerPage = 8
	}
	log := deps.Log.With("component", "wizard", "owner", sc.TelegramID, "role", sc.Role)
	m := &Machine{sc: sc, deps: deps, opts: opts, log: log, s: s}
	m.deb = loader.NewDebouncer(opts.Debounce)
	m.initLoaders()
	return m
}

func (m *Machine) Owner() int64 { return m.sc.TelegramID }

// Start runs the on-enter hook of the current step.
func (m *Machine) Start(ctx context.Context) {
	m.update(func() error {
		m.enter(ctx, m.s.Step)
		return nil
	})
}

// Wait blocks until every scheduled fetch and delayed transition settled.
func (m *Machine) Wait() { m.deb.Wait() }

func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Machine) CanAdvance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CanAdvance()
}

/*** EVENTS ***/

// SelectLab records the lab (or office) and advances to the doctor step.
// Picking a different entity than before drops the doctor and the product
// chain, which both depend on it.
func (m *Machine) SelectLab(ctx context.Context, id int64) error {
	var confirmDefault bool
	err := m.update(func() error {
		if err := m.expect(StepLab); err != nil {
			return err
		}
		ent, ok := findEntity(m.entitiesLocked(), id)
		if !ok {
			return fmt.Errorf("%w: unknown lab %d", ErrInvalidInput, id)
		}
		sel := &m.s.Selection
		if sel.LabID != id {
			sel.DoctorID, sel.DoctorName = 0, ""
			sel.clearFrom(StepCategory)
			m.products.Invalidate()
			m.detail.Invalidate()
		}
		sel.LabID, sel.LabName = ent.ID, ent.Name
		if !m.sc.ChoosesOffice() {
			m.sc.SelectedLabID = id
		}
		if m.s.FirstTimeSetup {
			m.s.FirstTimeSetup = false
			m.s.DefaultEntityID = id
			confirmDefault = true
		}
		return m.fire(ctx, EvSelectLab)
	})
	if err != nil || m.deps.Prefs == nil {
		return err
	}
	if !m.sc.ChoosesOffice() {
		if err := m.deps.Prefs.RememberLab(ctx, m.sc.TelegramID, id); err != nil {
			m.log.Warn("remember lab failed", "err", err)
		}
	}
	if confirmDefault {
		if err := m.deps.Prefs.ConfirmDefault(ctx, m.sc.TelegramID, id); err != nil {
			m.log.Warn("confirm default failed", "err", err)
		}
	}
	return nil
}

func (m *Machine) SelectDoctor(ctx context.Context, id int64) error {
	return m.update(func() error {
		if err := m.expect(StepDoctor); err != nil {
			return err
		}
		docs, _, _ := m.doctors.Last()
		for _, d := range docs {
			if d.ID == id {
				m.s.Selection.DoctorID, m.s.Selection.DoctorName = d.ID, d.Name
				return m.fire(ctx, EvSelectDoctor)
			}
		}
		return fmt.Errorf("%w: unknown doctor %d", ErrInvalidInput, id)
	})
}

// SubmitPatient stores the name as typed and advances when it holds a
// first and a last name.
func (m *Machine) SubmitPatient(ctx context.Context, name string) error {
	return m.update(func() error {
		if err := m.expect(StepPatient); err != nil {
			return err
		}
		m.s.Selection.PatientName = strings.Join(strings.Fields(name), " ")
		if !slip.ValidPatientName(name) {
			return fmt.Errorf("%w: patient needs a first and a last name", ErrInvalidInput)
		}
		return m.fire(ctx, EvSubmitPatient)
	})
}

func (m *Machine) SelectCategory(ctx context.Context, id int64) error {
	return m.update(func() error {
		if err := m.expect(StepCategory); err != nil {
			return err
		}
		cats, _, _ := m.categories.Last()
		for _, c := range cats {
			if c.ID == id {
				m.s.Selection.clearFrom(StepCategory)
				m.s.Selection.CategoryID, m.s.Selection.CategoryName = c.ID, c.Name
				return m.fire(ctx, EvSelectCategory)
			}
		}
		return fmt.Errorf("%w: unknown category %d", ErrInvalidInput, id)
	})
}

func (m *Machine) SelectSubcategory(ctx context.Context, id int64) error {
	return m.update(func() error {
		if err := m.expect(StepSubcategory); err != nil {
			return err
		}
		subs, _, _ := m.subcategories.Last()
		for _, s := range subs {
			if s.ID == id {
				m.s.Selection.clearFrom(StepSubcategory)
				m.s.Selection.SubcategoryID, m.s.Selection.SubcategoryName = s.ID, s.Name
				m.s.Search, m.s.Page = "", 1
				return m.fire(ctx, EvSelectSubcategory)
			}
		}
		return fmt.Errorf("%w: unknown subcategory %d", ErrInvalidInput, id)
	})
}

// SelectProduct advances to the stage step at once; the product detail
// arrives later and the stage list tolerates its absence meanwhile.
func (m *Machine) SelectProduct(ctx context.Context, id int64) error {
	return m.update(func() error {
		if err := m.expect(StepProduct); err != nil {
			return err
		}
		products, _, _ := m.products.Last()
		for _, p := range products {
			if p.ID == id {
				m.s.Selection.clearFrom(StepProduct)
				entry := p
				m.s.Selection.ProductID, m.s.Selection.Product = p.ID, &entry
				return m.fire(ctx, EvSelectProduct)
			}
		}
		return fmt.Errorf("%w: unknown product %d", ErrInvalidInput, id)
	})
}

// SelectStage makes key (a stage id or name) the only selected stage and
// opens the arch modal after the configured delay.
func (m *Machine) SelectStage(ctx context.Context, key string) error {
	return m.update(func() error {
		if err := m.expect(StepStage); err != nil {
			return err
		}
		st, ok := matchStage(m.stageOptionsLocked(), key)
		if !ok {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, key)
		}
		ref := StageKey(st)
		m.s.Selection.Stages = []string{ref}
		m.s.Selection.Arch = ""
		if m.opts.ArchDelay <= 0 {
			return m.fire(ctx, EvOpenArch)
		}
		gen := m.s.Generation
		m.deb.DoAfter(ctx, archKey, m.opts.ArchDelay, func(ctx context.Context) {
			m.update(func() error {
				if m.s.Generation != gen || m.s.Step != StepStage ||
					len(m.s.Selection.Stages) != 1 || m.s.Selection.Stages[0] != ref {
					return nil
				}
				return m.fire(ctx, EvOpenArch)
			})
		})
		return nil
	})
}

func (m *Machine) SelectArch(a slip.Arch) error {
	return m.update(func() error {
		if err := m.expect(StepArch); err != nil {
			return err
		}
		if _, ok := slip.ParseArch(string(a)); !ok {
			return fmt.Errorf("%w: arch %q", ErrInvalidInput, a)
		}
		m.s.Selection.Arch = a
		m.s.Error = ""
		return nil
	})
}

// ChangeProduct closes the arch modal and returns to the product list.
func (m *Machine) ChangeProduct(ctx context.Context) error {
	return m.update(func() error {
		if err := m.expect(StepArch); err != nil {
			return err
		}
		m.s.Selection.clearFrom(StepProduct)
		return m.fire(ctx, EvChangeProduct)
	})
}

// ConfirmArch assembles and persists the slip. A validation failure
// leaves the wizard in the arch modal with the reason in Session.Error.
func (m *Machine) ConfirmArch(ctx context.Context) (*slip.Result, error) {
	var req slip.Request
	var query labapi.ProductQuery
	var gen uint64
	err := m.update(func() error {
		if err := m.expect(StepArch); err != nil {
			return err
		}
		if m.s.Assembling {
			return fmt.Errorf("%w: already assembling", ErrNotAllowed)
		}
		if m.s.Selection.Arch == "" {
			return fmt.Errorf("%w: choose an arch first", ErrInvalidInput)
		}
		m.s.Assembling = true
		m.s.Error = ""
		req = m.requestLocked()
		query = m.queryLocked()
		gen = m.s.Generation
		return nil
	})
	if err != nil {
		return nil, err
	}

	asm := slip.NewAssembler(
		catalog{src: m.deps.Source, query: query},
		m.deps.Store, m.deps.Cache, m.deps.Nav, m.deps.Extractions, m.deps.Log,
	)
	res, aerr := asm.Assemble(ctx, req)

	err = m.update(func() error {
		if m.s.Generation != gen {
			return ErrClosed
		}
		m.s.Assembling = false
		if aerr != nil {
			m.s.Error = aerr.Error()
			return nil
		}
		m.result = res.Payload
		return m.fire(ctx, EvConfirmArch)
	})
	if aerr != nil {
		return nil, aerr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Machine) Next(ctx context.Context) error {
	m.mu.Lock()
	step, name := m.s.Step, m.s.Selection.PatientName
	m.mu.Unlock()
	if step == StepPatient {
		return m.SubmitPatient(ctx, name)
	}
	if step == StepArch {
		_, err := m.ConfirmArch(ctx)
		return err
	}
	return m.update(func() error {
		if m.closed {
			return ErrClosed
		}
		if !m.s.CanAdvance() {
			return fmt.Errorf("%w: %s is incomplete", ErrNotAllowed, m.s.Step)
		}
		return m.fire(ctx, EvNext)
	})
}

// Back moves exactly one step back. Returning to the category step or any
// later one clears that step's choice and everything after it.
func (m *Machine) Back(ctx context.Context) error {
	return m.update(func() error {
		if m.closed {
			return ErrClosed
		}
		if m.s.Assembling {
			return fmt.Errorf("%w: assembling", ErrNotAllowed)
		}
		to, ok := Transition(m.s.Step, EvBack)
		if !ok {
			return fmt.Errorf("%w: back from %s", ErrNotAllowed, m.s.Step)
		}
		if to >= StepCategory {
			m.s.Selection.clearFrom(to)
		}
		return m.fire(ctx, EvBack)
	})
}

// Clear drops a breadcrumb segment: the field owned by step and everything
// downstream, returning to that step.
func (m *Machine) Clear(ctx context.Context, step Step) error {
	ev, ok := map[Step]Event{
		StepCategory:    EvClearCategory,
		StepSubcategory: EvClearSubcategory,
		StepProduct:     EvClearProduct,
	}[step]
	if !ok {
		return fmt.Errorf("%w: cannot clear %s", ErrInvalidInput, step)
	}
	return m.update(func() error {
		if m.closed {
			return ErrClosed
		}
		if m.s.Assembling {
			return fmt.Errorf("%w: assembling", ErrNotAllowed)
		}
		if _, ok := Transition(m.s.Step, ev); !ok {
			return fmt.Errorf("%w: %s from %s", ErrNotAllowed, ev, m.s.Step)
		}
		m.s.Selection.clearFrom(step)
		return m.fire(ctx, ev)
	})
}

// SearchProducts filters the product step and restarts paging.
func (m *Machine) SearchProducts(ctx context.Context, text string) error {
	return m.update(func() error {
		if err := m.expect(StepProduct); err != nil {
			return err
		}
		m.s.Search, m.s.Page = strings.TrimSpace(text), 1
		m.fetchProducts(ctx)
		return nil
	})
}

func (m *Machine) ProductPage(ctx context.Context, page int) error {
	return m.update(func() error {
		if err := m.expect(StepProduct); err != nil {
			return err
		}
		if page < 1 {
			return fmt.Errorf("%w: page %d", ErrInvalidInput, page)
		}
		m.s.Page = page
		m.fetchProducts(ctx)
		return nil
	})
}

func (m *Machine) ToggleSort(ctx context.Context) error {
	return m.update(func() error {
		if err := m.expect(StepProduct); err != nil {
			return err
		}
		m.s.SortDesc = !m.s.SortDesc
		m.s.Page = 1
		m.fetchProducts(ctx)
		return nil
	})
}

// Retry re-runs the current step's fetch after an error.
func (m *Machine) Retry(ctx context.Context) error {
	return m.update(func() error {
		if m.closed {
			return ErrClosed
		}
		delete(m.s.Errors, m.s.Step)
		m.enter(ctx, m.s.Step)
		return nil
	})
}

func (m *Machine) RequestCancel() {
	m.update(func() error {
		m.s.ConfirmingCancel = true
		return nil
	})
}

func (m *Machine) DismissCancel() {
	m.update(func() error {
		m.s.ConfirmingCancel = false
		return nil
	})
}

// Cancel resets the session and closes the wizard. Fetches still in
// flight are fenced off by the generation bump and cannot touch it.
func (m *Machine) Cancel() {
	m.mu.Lock()
	gen := m.s.Generation + 1
	m.deb.CancelAll()
	for _, inv := range []func(){
		m.labs.Invalidate, m.doctors.Invalidate, m.categories.Invalidate,
		m.subcategories.Invalidate, m.products.Invalidate, m.detail.Invalidate,
	} {
		inv()
	}
	m.s = newSession(m.sc)
	m.s.Generation = gen
	m.closed = true
	m.result = nil
	m.mu.Unlock()
	m.log.Info("wizard cancelled")
}

func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

/*** HELPERS ***/

// update runs fn under the lock and notifies the observer afterwards.
func (m *Machine) update(fn func() error) error {
	m.mu.Lock()
	err := fn()
	v := m.viewLocked()
	m.mu.Unlock()
	if m.deps.Observer != nil {
		m.deps.Observer.Changed(v)
	}
	return err
}

func (m *Machine) expect(step Step) error {
	if m.closed {
		return ErrClosed
	}
	if m.s.Step != step {
		return fmt.Errorf("%w: expected %s, at %s", ErrNotAllowed, step, m.s.Step)
	}
	return nil
}

// fire applies ev from the current step and runs the target's on-enter
// hook. Lock held.
func (m *Machine) fire(ctx context.Context, ev Event) error {
	from := m.s.Step
	to, ok := Transition(from, ev)
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrNotAllowed, ev, from)
	}
	if from == StepStage {
		m.deb.Cancel(archKey)
	}
	m.s.Step = to
	m.s.ConfirmingCancel = false
	delete(m.s.Errors, to)
	metrics.WizardTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.log.Debug("transition", "from", from, "event", ev, "to", to)
	m.enter(ctx, to)
	return nil
}

func (m *Machine) requestLocked() slip.Request {
	sel := m.s.Selection
	req := slip.Request{
		Owner:          m.sc.TelegramID,
		PatientName:    sel.PatientName,
		Doctor:         slip.Doctor{ID: sel.DoctorID, Name: sel.DoctorName},
		ProductID:      sel.ProductID,
		StageSelection: append([]string(nil), sel.Stages...),
		Arch:           sel.Arch,
		SessionLabID:   m.sc.SelectedLabID,
		OnDone: func(p *slip.Payload) {
			if m.deps.OnComplete != nil {
				m.deps.OnComplete(m.sc.TelegramID, p)
			}
		},
	}
	if sel.Product != nil {
		req.ProductName = sel.Product.Name
	}
	if products, params, ok := m.products.Last(); ok {
		req.Catalog = products
		req.ProductLabID = params.LabID
	}
	if m.sc.ChoosesOffice() {
		req.LabID = m.sc.PrimaryCustomerID()
		req.OfficeID = sel.LabID
		for _, c := range m.sc.Customers {
			req.Labs = append(req.Labs, labapi.Entity{ID: c.ID, Name: c.Name})
		}
	} else {
		req.LabID = sel.LabID
		req.Labs, _, _ = m.labs.Last()
		if len(req.Labs) == 0 && sel.LabID != 0 && sel.LabName != "" {
			req.Labs = []labapi.Entity{{ID: sel.LabID, Name: sel.LabName}}
		}
	}
	return req
}

func findEntity(list []labapi.Entity, id int64) (labapi.Entity, bool) {
	for _, e := range list {
		if e.ID == id {
			return e, true
		}
	}
	return labapi.Entity{}, false
}

// StageKey identifies a stage option: its id, or its name when it has none.
func StageKey(s labapi.Stage) string {
	if s.ID != 0 {
		return strconv.FormatInt(s.ID, 10)
	}
	return s.Name
}

func matchStage(options []labapi.Stage, key string) (labapi.Stage, bool) {
	key = strings.TrimSpace(key)
	id, _ := strconv.ParseInt(key, 10, 64)
	for _, s := range options {
		if (id != 0 && s.ID == id) || strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return labapi.Stage{}, false
}
