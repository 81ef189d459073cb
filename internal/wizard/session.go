package wizard

import (
	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
)

// Selection accumulates the user's choices. LabID holds the office id when
// the role picks offices in the first step.
type Selection struct {
	LabID           int64           `json:"lab_id,omitempty"`
	LabName         string          `json:"lab_name,omitempty"`
	DoctorID        int64           `json:"doctor_id,omitempty"`
	DoctorName      string          `json:"doctor_name,omitempty"`
	PatientName     string          `json:"patient_name,omitempty"`
	CategoryID      int64           `json:"category_id,omitempty"`
	CategoryName    string          `json:"category_name,omitempty"`
	SubcategoryID   int64           `json:"subcategory_id,omitempty"`
	SubcategoryName string          `json:"subcategory_name,omitempty"`
	ProductID       int64           `json:"product_id,omitempty"`
	Product         *labapi.Product `json:"product,omitempty"`
	Stages          []string        `json:"stages,omitempty"`
	Arch            slip.Arch       `json:"arch,omitempty"`
}

// Session is the persisted part of a wizard. Fields tagged "-" describe
// in-flight work and are rebuilt after a restart.
type Session struct {
	Step            Step         `json:"step"`
	Role            session.Role `json:"role"`
	Selection       Selection    `json:"selection"`
	FirstTimeSetup  bool         `json:"first_time_setup"`
	DefaultEntityID int64        `json:"default_entity_id,omitempty"`

	Search   string `json:"search,omitempty"`
	Page     int    `json:"page,omitempty"`
	SortDesc bool   `json:"sort_desc,omitempty"`

	ConfirmingCancel bool            `json:"-"`
	Assembling       bool            `json:"-"`
	Loading          map[string]bool `json:"-"`
	Errors           map[Step]string `json:"-"`
	// Error is the last assembly failure shown in the arch modal.
	Error      string `json:"-"`
	Generation uint64 `json:"-"`
}

func newSession(sc session.Context) Session {
	return Session{
		Step:            StepLab,
		Role:            sc.Role,
		FirstTimeSetup:  sc.FirstTimeSetup,
		DefaultEntityID: sc.DefaultEntityID,
		Page:            1,
		Loading:         map[string]bool{},
		Errors:          map[Step]string{},
	}
}

// CanAdvance is the Next-button gate for the current step.
func (s *Session) CanAdvance() bool {
	sel := s.Selection
	switch s.Step {
	case StepLab:
		return sel.LabID != 0
	case StepDoctor:
		return sel.DoctorID != 0
	case StepPatient:
		return slip.ValidPatientName(sel.PatientName)
	case StepCategory:
		return sel.CategoryID != 0
	case StepSubcategory:
		return sel.SubcategoryID != 0
	case StepProduct:
		return sel.ProductID != 0
	case StepStage:
		return len(sel.Stages) == 1
	case StepArch:
		return sel.Arch != "" && !s.Assembling
	}
	return false
}

// clearFrom nulls the field owned by step and everything downstream of it.
// Lab, doctor and patient are never cleared this way.
func (s *Selection) clearFrom(step Step) {
	switch step {
	case StepCategory:
		s.CategoryID, s.CategoryName = 0, ""
		fallthrough
	case StepSubcategory:
		s.SubcategoryID, s.SubcategoryName = 0, ""
		fallthrough
	case StepProduct:
		s.ProductID, s.Product = 0, nil
		fallthrough
	case StepStage:
		s.Stages = nil
		fallthrough
	case StepArch:
		s.Arch = ""
	}
}
