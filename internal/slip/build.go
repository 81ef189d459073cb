package slip

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Spok95/slip-bot/internal/labapi"
)

// ValidPatientName requires a first and a last name, the second token at
// least two characters long.
func ValidPatientName(name string) bool {
	parts := strings.Fields(name)
	return len(parts) >= 2 && utf8.RuneCountInString(parts[1]) >= 2
}

// SplitPatientName returns the first token and the rest.
func SplitPatientName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// DefaultGrade is the first grade flagged default, else the first grade,
// else FallbackGrade.
func DefaultGrade(grades []labapi.Grade) labapi.Grade {
	for _, g := range grades {
		if g.IsDefault {
			return g
		}
	}
	if len(grades) > 0 {
		return grades[0]
	}
	return labapi.Grade{Name: FallbackGrade}
}

// ResolveStage matches the selection (an id or a name) against the
// product stages, else takes the first stage, else FallbackStage.
func ResolveStage(selection []string, stages []labapi.Stage) labapi.Stage {
	if len(selection) > 0 {
		key := strings.TrimSpace(selection[0])
		id, _ := strconv.ParseInt(key, 10, 64)
		for _, s := range stages {
			if (id != 0 && s.ID == id) || strings.EqualFold(s.Name, key) {
				return s
			}
		}
	}
	if len(stages) > 0 {
		return stages[0]
	}
	return labapi.Stage{Name: FallbackStage}
}

// SnapshotID namespaces a product id with a timestamp.
func SnapshotID(productID int64, at time.Time) string {
	return fmt.Sprintf("%d-%d", productID, at.UnixMilli())
}

// BaseProductID strips a "-<timestamp>" suffix.
func BaseProductID(id string) string {
	if i := strings.LastIndexByte(id, '-'); i > 0 {
		if _, err := strconv.ParseInt(id[i+1:], 10, 64); err == nil {
			return id[:i]
		}
	}
	return id
}

// Resolved is everything BuildPayload needs, already fetched and merged.
type Resolved struct {
	PatientName    string
	Doctor         Doctor
	Lab            Lab
	OfficeID       int64
	Product        ProductInfo
	StageSelection []string
	Arch           Arch
	SnapshotID     string
	Extractions    []labapi.Extraction
	At             time.Time
}

// BuildPayload is the single payload builder used by both the main path and
// the verify-retry path of the assembler.
func BuildPayload(r Resolved) *Payload {
	grade := DefaultGrade(r.Product.Grades)
	stage := ResolveStage(r.StageSelection, r.Product.Stages)
	first, last := SplitPatientName(r.PatientName)

	product := r.Product
	if len(r.Extractions) > 0 {
		product.Extractions = append([]labapi.Extraction(nil), r.Extractions...)
	}
	if product.Grades == nil {
		product.Grades = []labapi.Grade{}
	}
	if product.Stages == nil {
		product.Stages = []labapi.Stage{}
	}
	if product.Extractions == nil {
		product.Extractions = []labapi.Extraction{}
	}

	cfg := ArchConfig{GradeID: grade.ID, Grade: grade.Name, StageID: stage.ID, Stage: stage.Name}
	arch := r.Arch
	if arch == "" {
		arch = ArchBoth
	}
	snapshotID := r.SnapshotID
	if snapshotID == "" {
		snapshotID = SnapshotID(product.ID, r.At)
	}

	selected := product
	return &Payload{
		FormData: FormData{
			PatientFirstName: first,
			PatientLastName:  last,
			Patient:          strings.Join(strings.Fields(r.PatientName), " "),
			DoctorID:         r.Doctor.ID,
			Doctor:           r.Doctor.Name,
			LabID:            r.Lab.ID,
			Lab:              r.Lab.Name,
			OfficeID:         r.OfficeID,
			Category:         product.CategoryName,
			Subcategory:      product.SubcategoryName,
		},
		SelectedLab:     r.Lab,
		SelectedDoctor:  r.Doctor,
		SelectedProduct: &selected,
		SelectedArch:    arch,
		SelectedStage:   StageRef{ID: stage.ID, Name: stage.Name},
		Products: []Product{{
			ID:               snapshotID,
			ProductInfo:      product,
			ProductID:        product.ID,
			Type:             arch,
			MaxillaryConfig:  cfg,
			MandibularConfig: cfg,
			AddedAt:          r.At,
		}},
		Teeth:     map[string][]int{},
		CreatedAt: r.At,
	}
}

// InfoFromCatalog converts a catalog entry.
func InfoFromCatalog(p labapi.Product) ProductInfo {
	return ProductInfo{
		ID:              p.ID,
		Name:            p.Name,
		ImageURL:        p.ImageURL,
		CategoryID:      p.CategoryID,
		CategoryName:    p.CategoryName,
		SubcategoryID:   p.SubcategoryID,
		SubcategoryName: p.SubcategoryName,
		StageType:       p.StageType,
		Grades:          p.Grades,
		Stages:          p.Stages,
		Extractions:     p.Extractions,
	}
}

// MergeDetail overlays fetched grades, stages and extractions on the
// catalog entry. Fetched data wins wherever it is non-empty.
func MergeDetail(info ProductInfo, d *labapi.ProductDetail) ProductInfo {
	if d == nil {
		return info
	}
	if len(d.Grades) > 0 {
		info.Grades = d.Grades
	}
	if len(d.Stages) > 0 {
		info.Stages = d.Stages
	}
	if len(d.Extractions) > 0 {
		info.Extractions = d.Extractions
	}
	return info
}
