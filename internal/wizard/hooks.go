package wizard

import (
	"context"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/loader"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
)

type productParams struct {
	LabID int64
	Query labapi.ProductQuery
}

type detailParams struct {
	ProductID int64
	LabID     int64
}

const (
	LoadLabs          = "labs"
	LoadDoctors       = "doctors"
	LoadCategories    = "categories"
	LoadSubcategories = "subcategories"
	LoadProducts      = "products"
	LoadDetail        = "detail"
)

func (m *Machine) initLoaders() {
	src, log := m.deps.Source, m.deps.Log
	m.labs = loader.New(LoadLabs, m.deb, log, func(ctx context.Context, offices bool) ([]labapi.Entity, error) {
		if offices {
			return src.ConnectedOffices(ctx)
		}
		return src.ConnectedLabs(ctx)
	})
	m.doctors = loader.New(LoadDoctors, m.deb, log, src.OfficeDoctors)
	m.categories = loader.New(LoadCategories, m.deb, log, func(ctx context.Context, _ struct{}) ([]labapi.Category, error) {
		return src.Categories(ctx)
	})
	m.subcategories = loader.New(LoadSubcategories, m.deb, log, src.Subcategories)
	m.products = loader.New(LoadProducts, m.deb, log, func(ctx context.Context, p productParams) ([]labapi.Product, error) {
		return src.LabProducts(ctx, p.LabID, p.Query)
	})
	m.detail = loader.New(LoadDetail, m.deb, log, func(ctx context.Context, p detailParams) (*labapi.ProductDetail, error) {
		return src.ProductDetail(ctx, p.ProductID, p.LabID)
	})
}

// enter is the on-enter hook of step. Lock held.
func (m *Machine) enter(ctx context.Context, step Step) {
	switch step {
	case StepLab:
		m.fetchLabs(ctx)
	case StepDoctor:
		m.enterDoctor(ctx)
	case StepCategory:
		m.fetchCategories(ctx)
	case StepSubcategory:
		m.fetchSubcategories(ctx)
	case StepProduct:
		m.fetchProducts(ctx)
	case StepStage:
		m.fetchDetail(ctx)
	case StepArch:
		// after a restore nothing was loaded for the modal yet
		if _, p, ok := m.detail.Last(); !ok || p.ProductID != m.s.Selection.ProductID {
			m.fetchDetail(ctx)
		}
	}
}

// settle is the common apply path for a background fetch: it ignores the
// response when the wizard moved on, otherwise clears the loading flag and
// records or clears the step error.
func (m *Machine) settle(gen uint64, step Step, name string, err error, ok func() bool, apply func()) {
	m.update(func() error {
		if m.closed || m.s.Generation != gen || m.s.Step != step || (ok != nil && !ok()) {
			return nil
		}
		m.s.Loading[name] = false
		if err != nil {
			m.s.Errors[step] = err.Error()
			return nil
		}
		delete(m.s.Errors, step)
		if apply != nil {
			apply()
		}
		return nil
	})
}

func (m *Machine) fetchLabs(ctx context.Context) {
	gen := m.s.Generation
	m.s.Loading[LoadLabs] = true
	m.labs.Fetch(ctx, m.sc.ChoosesOffice(), func(_ []labapi.Entity, err error) {
		m.settle(gen, StepLab, LoadLabs, err, nil, nil)
	})
}

// enterDoctor self-assigns a doctor-role user; everyone else gets the
// office's doctor list, auto-selected when it has a single entry.
func (m *Machine) enterDoctor(ctx context.Context) {
	sel := &m.s.Selection
	if m.sc.Role == session.RoleDoctor && sel.LabID != 0 && sel.DoctorID == 0 {
		sel.DoctorID, sel.DoctorName = m.sc.UserID, m.sc.Name
		_ = m.fire(ctx, EvAutoDoctor)
		return
	}
	customer := m.doctorCustomerID()
	if customer == 0 {
		m.s.Errors[StepDoctor] = "no office to load doctors for"
		return
	}
	gen := m.s.Generation
	m.s.Loading[LoadDoctors] = true
	m.doctors.Fetch(ctx, customer, func(docs []labapi.Doctor, err error) {
		m.settle(gen, StepDoctor, LoadDoctors, err, nil, func() {
			if len(docs) == 1 && m.s.Selection.LabID != 0 && m.s.Selection.DoctorID == 0 {
				m.s.Selection.DoctorID, m.s.Selection.DoctorName = docs[0].ID, docs[0].Name
				_ = m.fire(ctx, EvAutoDoctor)
			}
		})
	})
}

// doctorCustomerID picks whose doctors step two lists.
func (m *Machine) doctorCustomerID() int64 {
	switch m.sc.Role {
	case session.RoleDoctor, session.RoleOfficeAdmin:
		return m.sc.SelectedLabID
	case session.RoleLabAdmin:
		return m.s.Selection.LabID
	}
	return m.sc.PrimaryCustomerID()
}

func (m *Machine) fetchCategories(ctx context.Context) {
	gen := m.s.Generation
	m.s.Loading[LoadCategories] = true
	m.categories.Fetch(ctx, struct{}{}, func(_ []labapi.Category, err error) {
		m.settle(gen, StepCategory, LoadCategories, err, nil, nil)
	})
}

func (m *Machine) fetchSubcategories(ctx context.Context) {
	gen := m.s.Generation
	cat := m.s.Selection.CategoryID
	if cat == 0 {
		return
	}
	m.s.Loading[LoadSubcategories] = true
	m.subcategories.Fetch(ctx, cat, func(_ []labapi.Subcategory, err error) {
		m.settle(gen, StepSubcategory, LoadSubcategories, err,
			func() bool { return m.s.Selection.CategoryID == cat }, nil)
	})
}

func (m *Machine) fetchProducts(ctx context.Context) {
	gen := m.s.Generation
	params := productParams{LabID: m.productLabID(), Query: m.queryLocked()}
	m.s.Loading[LoadProducts] = true
	m.products.Fetch(ctx, params, func(_ []labapi.Product, err error) {
		m.settle(gen, StepProduct, LoadProducts, err, nil, nil)
	})
}

// fetchDetail loads grades, stages and extractions for the chosen product.
// The response is accepted on the stage step and in the arch modal.
func (m *Machine) fetchDetail(ctx context.Context) {
	pid := m.s.Selection.ProductID
	if pid == 0 {
		return
	}
	gen := m.s.Generation
	params := detailParams{ProductID: pid, LabID: m.productLabID()}
	m.s.Loading[LoadDetail] = true
	m.detail.Fetch(ctx, params, func(d *labapi.ProductDetail, err error) {
		if err == nil && d != nil {
			m.deps.Extractions.PutProduct(pid, d.Extractions)
		}
		m.update(func() error {
			if m.closed || m.s.Generation != gen || m.s.Selection.ProductID != pid {
				return nil
			}
			m.s.Loading[LoadDetail] = false
			if err != nil {
				// the catalog entry still carries stages; only note it
				m.s.Errors[StepStage] = err.Error()
			}
			return nil
		})
	})
}

// productLabID is the lab whose catalog the product steps browse.
func (m *Machine) productLabID() int64 {
	if m.sc.ChoosesOffice() {
		return m.sc.PrimaryCustomerID()
	}
	return m.s.Selection.LabID
}

func (m *Machine) queryLocked() labapi.ProductQuery {
	order := "asc"
	if m.s.SortDesc {
		order = "desc"
	}
	return labapi.ProductQuery{
		PerPage:       m.opts.ProductsPerPage,
		Page:          m.s.Page,
		Search:        m.s.Search,
		SubcategoryID: m.s.Selection.SubcategoryID,
		SortBy:        "name",
		SortOrder:     order,
	}
}

// entitiesLocked lists what step one offers, the sticky default first.
func (m *Machine) entitiesLocked() []labapi.Entity {
	list, _, _ := m.labs.Last()
	if m.s.DefaultEntityID == 0 {
		return list
	}
	out := make([]labapi.Entity, 0, len(list))
	for _, e := range list {
		if e.ID == m.s.DefaultEntityID {
			out = append([]labapi.Entity{e}, out...)
		} else {
			out = append(out, e)
		}
	}
	return out
}

// stageOptionsLocked prefers the fetched detail over the catalog entry and
// falls back to a single literal stage once nothing is loading.
func (m *Machine) stageOptionsLocked() []labapi.Stage {
	pid := m.s.Selection.ProductID
	if d, p, ok := m.detail.Last(); ok && d != nil && p.ProductID == pid && len(d.Stages) > 0 {
		return d.Stages
	}
	if e := m.s.Selection.Product; e != nil && len(e.Stages) > 0 {
		return e.Stages
	}
	if m.s.Loading[LoadDetail] {
		return nil
	}
	return []labapi.Stage{{Name: slip.FallbackStage}}
}

// catalog adapts Source for the assembler's one-shot re-fetch.
type catalog struct {
	src   Source
	query labapi.ProductQuery
}

func (c catalog) Products(ctx context.Context, labID int64) ([]labapi.Product, error) {
	return c.src.LabProducts(ctx, labID, c.query)
}

func (c catalog) Detail(ctx context.Context, productID, labID int64) (*labapi.ProductDetail, error) {
	return c.src.ProductDetail(ctx, productID, labID)
}
