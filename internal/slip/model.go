// Package slip assembles the case-creation record ("slip") the wizard
// produces and that the case-design page consumes.
package slip

import (
	"time"

	"github.com/Spok95/slip-bot/internal/labapi"
)

type Arch string

const (
	ArchUpper Arch = "upper"
	ArchLower Arch = "lower"
	ArchBoth  Arch = "both"
)

func ParseArch(s string) (Arch, bool) {
	switch Arch(s) {
	case ArchUpper, ArchLower, ArchBoth:
		return Arch(s), true
	}
	return "", false
}

func (a Arch) Label() string {
	switch a {
	case ArchUpper:
		return "Maxillary (upper)"
	case ArchLower:
		return "Mandibular (lower)"
	case ArchBoth:
		return "Both arches"
	}
	return string(a)
}

// Fallbacks used when the product carries no grades or stages.
const (
	FallbackGrade      = "Mid Grade"
	FallbackStage      = "Try in with teeth"
	PlaceholderLabName = "Selected Lab"
)

type FormData struct {
	PatientFirstName string `json:"patientFirstName"`
	PatientLastName  string `json:"patientLastName"`
	Patient          string `json:"patient"`
	DoctorID         int64  `json:"doctor_id"`
	Doctor           string `json:"doctor"`
	LabID            int64  `json:"lab_id"`
	Lab              string `json:"lab"`
	OfficeID         int64  `json:"office_id,omitempty"`
	Category         string `json:"category,omitempty"`
	Subcategory      string `json:"subcategory,omitempty"`
}

type Lab struct {
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
}

type Doctor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type StageRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// ProductInfo is the detail-enriched product the user picked.
type ProductInfo struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	ImageURL        string              `json:"image_url,omitempty"`
	CategoryID      int64               `json:"category_id,omitempty"`
	CategoryName    string              `json:"category_name,omitempty"`
	SubcategoryID   int64               `json:"subcategory_id,omitempty"`
	SubcategoryName string              `json:"subcategory_name,omitempty"`
	StageType       labapi.StageType    `json:"stage_type,omitempty"`
	Grades          []labapi.Grade      `json:"grades"`
	Stages          []labapi.Stage      `json:"stages"`
	Extractions     []labapi.Extraction `json:"extractions"`
}

type ArchConfig struct {
	GradeID int64  `json:"grade_id,omitempty"`
	Grade   string `json:"grade"`
	StageID int64  `json:"stage_id,omitempty"`
	Stage   string `json:"stage"`
	Teeth   []int  `json:"teeth,omitempty"`
}

// Product is the denormalised snapshot the case-design page renders
// without re-fetching. ID is namespaced as "<productID>-<unixMillis>".
type Product struct {
	ID string `json:"id"`
	ProductInfo
	ProductID        int64      `json:"product_id"`
	Type             Arch       `json:"type"`
	MaxillaryConfig  ArchConfig `json:"maxillaryConfig"`
	MandibularConfig ArchConfig `json:"mandibularConfig"`
	AddedAt          time.Time  `json:"added_at"`
}

type Payload struct {
	FormData        FormData         `json:"formData"`
	SelectedLab     Lab              `json:"selectedLab"`
	SelectedDoctor  Doctor           `json:"selectedDoctor"`
	SelectedProduct *ProductInfo     `json:"selectedProduct"`
	SelectedArch    Arch             `json:"selectedArch"`
	SelectedStage   StageRef         `json:"selectedStage"`
	Products        []Product        `json:"products"`
	Teeth           map[string][]int `json:"teeth,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Valid reports whether the payload carries what the case-design page
// needs: a full patient name, a doctor and a lab.
func (p *Payload) Valid() bool {
	return p != nil &&
		ValidPatientName(p.FormData.Patient) &&
		p.SelectedDoctor.ID != 0 &&
		p.SelectedLab.ID != 0
}

// Default is the record written when the store is reset or touched before
// the first Set.
func Default() *Payload {
	return &Payload{Products: []Product{}, Teeth: map[string][]int{}}
}

// Patch is a shallow update: nil fields are left untouched.
type Patch struct {
	FormData        *FormData
	SelectedLab     *Lab
	SelectedDoctor  *Doctor
	SelectedProduct *ProductInfo
	SelectedArch    *Arch
	SelectedStage   *StageRef
	Products        []Product
}

func (p *Payload) apply(patch Patch) {
	if patch.FormData != nil {
		p.FormData = *patch.FormData
	}
	if patch.SelectedLab != nil {
		p.SelectedLab = *patch.SelectedLab
	}
	if patch.SelectedDoctor != nil {
		p.SelectedDoctor = *patch.SelectedDoctor
	}
	if patch.SelectedProduct != nil {
		cp := *patch.SelectedProduct
		p.SelectedProduct = &cp
	}
	if patch.SelectedArch != nil {
		p.SelectedArch = *patch.SelectedArch
	}
	if patch.SelectedStage != nil {
		p.SelectedStage = *patch.SelectedStage
	}
	if patch.Products != nil {
		p.Products = append([]Product(nil), patch.Products...)
	}
}

// Merge returns a copy of p (or of Default when p is nil) with patch applied.
func Merge(p *Payload, patch Patch) *Payload {
	out := Default()
	if p != nil {
		cp := *p
		out = &cp
	}
	out.apply(patch)
	return out
}

// ProductPatch updates one snapshot; nil fields are left untouched.
type ProductPatch struct {
	MaxillaryConfig  *ArchConfig
	MandibularConfig *ArchConfig
	Type             *Arch
}

// With returns a copy of p with patch applied.
func (p Product) With(patch ProductPatch) Product {
	if patch.MaxillaryConfig != nil {
		p.MaxillaryConfig = *patch.MaxillaryConfig
	}
	if patch.MandibularConfig != nil {
		p.MandibularConfig = *patch.MandibularConfig
	}
	if patch.Type != nil {
		p.Type = *patch.Type
	}
	return p
}

// TeethField is the key SetSelectedTeeth writes for an arch.
func TeethField(a Arch) string {
	return string(a) + "Teeth"
}
