package wizard

import (
	"maps"
	"slices"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/slip"
)

// View is a copy of everything needed to render the wizard.
type View struct {
	Owner   int64
	Session Session
	Closed  bool

	Labs          []labapi.Entity
	Doctors       []labapi.Doctor
	Categories    []labapi.Category
	Subcategories []labapi.Subcategory
	Products      []labapi.Product
	HasMore       bool
	Stages        []labapi.Stage
	Detail        *labapi.ProductDetail

	CanAdvance bool
	Result     *slip.Payload
}

func (v View) Step() Step { return v.Session.Step }

func (v View) Loading(name string) bool { return v.Session.Loading[name] }

// DetailLoading is set while the product detail for the stage step is in
// flight.
func (v View) DetailLoading() bool { return v.Session.Loading[LoadDetail] }

func (v View) Err() string { return v.Session.Errors[v.Session.Step] }

func (m *Machine) viewLocked() View {
	s := m.s
	s.Loading = maps.Clone(m.s.Loading)
	s.Errors = maps.Clone(m.s.Errors)
	s.Selection.Stages = slices.Clone(m.s.Selection.Stages)

	v := View{
		Owner:      m.sc.TelegramID,
		Session:    s,
		Closed:     m.closed,
		CanAdvance: m.s.CanAdvance(),
		Result:     m.result,
	}
	switch m.s.Step {
	case StepLab:
		v.Labs = m.entitiesLocked()
	case StepDoctor:
		v.Doctors, _, _ = m.doctors.Last()
		if len(v.Doctors) == 0 && m.s.Selection.DoctorID != 0 {
			v.Doctors = []labapi.Doctor{{ID: m.s.Selection.DoctorID, Name: m.s.Selection.DoctorName}}
		}
	case StepCategory:
		v.Categories, _, _ = m.categories.Last()
	case StepSubcategory:
		v.Subcategories, _, _ = m.subcategories.Last()
	case StepProduct:
		v.Products, _, _ = m.products.Last()
		v.HasMore = len(v.Products) >= m.opts.ProductsPerPage
	case StepStage, StepArch:
		v.Stages = m.stageOptionsLocked()
		if d, p, ok := m.detail.Last(); ok && p.ProductID == m.s.Selection.ProductID {
			v.Detail = d
		}
	}
	return v
}
