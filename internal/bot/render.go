package bot

import (
	"fmt"
	"strings"

	"github.com/Spok95/slip-bot/internal/session"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

var stepTitles = map[wizard.Step]string{
	wizard.StepLab:         "Lab",
	wizard.StepDoctor:      "Doctor",
	wizard.StepPatient:     "Patient",
	wizard.StepCategory:    "Category",
	wizard.StepSubcategory: "Subcategory",
	wizard.StepProduct:     "Product",
	wizard.StepStage:       "Stage",
}

// wizardText renders the message body for a wizard view.
func wizardText(v wizard.View) string {
	if v.Closed {
		return "Slip cancelled."
	}
	step := v.Step()
	if step == wizard.StepComplete {
		if v.Result != nil {
			return fmt.Sprintf("✅ Slip saved for %s.", v.Result.FormData.Patient)
		}
		return "✅ Slip saved."
	}

	var sb strings.Builder
	if step.Numbered() {
		title := stepTitles[step]
		if step == wizard.StepLab && v.Session.Role == session.RoleLabAdmin {
			title = "Office"
		}
		fmt.Fprintf(&sb, "Add Slip · step %d of %d: %s\n", int(step), int(wizard.StepStage), title)
	} else {
		sb.WriteString("Add Slip · choose the arch\n")
	}
	if crumbs := breadcrumb(v.Session.Selection); crumbs != "" {
		sb.WriteString(crumbs + "\n")
	}
	sb.WriteString("\n")

	if v.Session.ConfirmingCancel {
		sb.WriteString("Discard this slip? Everything entered so far will be lost.")
		return sb.String()
	}
	if e := v.Err(); e != "" {
		fmt.Fprintf(&sb, "⚠️ %s\n\n", e)
	}

	sb.WriteString(stepPrompt(v))
	return sb.String()
}

func stepPrompt(v wizard.View) string {
	sel := v.Session.Selection
	switch v.Step() {
	case wizard.StepLab:
		if v.Loading(wizard.LoadLabs) {
			return "Loading…"
		}
		if len(v.Labs) == 0 {
			return "No connections found."
		}
		if v.Session.Role == session.RoleLabAdmin {
			return "Choose the office this slip is for."
		}
		return "Choose the lab this slip goes to."
	case wizard.StepDoctor:
		if v.Loading(wizard.LoadDoctors) {
			return "Loading doctors…"
		}
		if len(v.Doctors) == 0 {
			return "No doctors found for this office."
		}
		return "Choose the doctor."
	case wizard.StepPatient:
		if sel.PatientName != "" {
			return fmt.Sprintf("Patient: %s\nSend a new name to change it or press Next.", sel.PatientName)
		}
		return "Send the patient's first and last name as a message."
	case wizard.StepCategory:
		if v.Loading(wizard.LoadCategories) {
			return "Loading categories…"
		}
		return "Choose a category."
	case wizard.StepSubcategory:
		if v.Loading(wizard.LoadSubcategories) {
			return "Loading subcategories…"
		}
		if len(v.Subcategories) == 0 {
			return "This category has no subcategories."
		}
		return "Choose a subcategory."
	case wizard.StepProduct:
		var sb strings.Builder
		if v.Session.Search != "" {
			fmt.Fprintf(&sb, "Search: %q\n", v.Session.Search)
		}
		fmt.Fprintf(&sb, "Page %d", max(v.Session.Page, 1))
		switch {
		case v.Loading(wizard.LoadProducts):
			sb.WriteString("\nLoading products…")
		case len(v.Products) == 0:
			sb.WriteString("\nNo products found.")
		default:
			sb.WriteString("\nChoose a product. Send a message to search.")
		}
		return sb.String()
	case wizard.StepStage:
		if len(v.Stages) == 0 && v.DetailLoading() {
			return "Loading stages…"
		}
		return "Choose the stage."
	case wizard.StepArch:
		var sb strings.Builder
		if sel.Product != nil {
			fmt.Fprintf(&sb, "%s\n", sel.Product.Name)
		}
		if v.Session.Assembling {
			sb.WriteString("Saving the slip…")
			return sb.String()
		}
		if v.Session.Error != "" {
			fmt.Fprintf(&sb, "⚠️ %s\n", v.Session.Error)
		}
		if sel.Arch != "" {
			fmt.Fprintf(&sb, "Arch: %s. Press Continue to save.", sel.Arch.Label())
		} else {
			sb.WriteString("Which arch is this for?")
		}
		return sb.String()
	}
	return ""
}

// breadcrumb lists the choices made so far.
func breadcrumb(sel wizard.Selection) string {
	var parts []string
	for _, p := range []string{sel.LabName, sel.DoctorName, sel.PatientName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	var product []string
	for _, p := range []string{sel.CategoryName, sel.SubcategoryName} {
		if p != "" {
			product = append(product, p)
		}
	}
	if sel.Product != nil {
		product = append(product, sel.Product.Name)
	}
	lines := []string{}
	if len(parts) > 0 {
		lines = append(lines, "👤 "+strings.Join(parts, " › "))
	}
	if len(product) > 0 {
		lines = append(lines, "🦷 "+strings.Join(product, " › "))
	}
	return strings.Join(lines, "\n")
}

// slipSummary is the text sent alongside the slip sheet.
func slipSummary(p *slip.Payload, reload bool) string {
	var sb strings.Builder
	if reload {
		sb.WriteString("📋 Case design updated\n\n")
	} else {
		sb.WriteString("📋 Case design\n\n")
	}
	fmt.Fprintf(&sb, "Patient: %s\n", p.FormData.Patient)
	fmt.Fprintf(&sb, "Doctor: %s\n", p.FormData.Doctor)
	fmt.Fprintf(&sb, "Lab: %s\n", p.FormData.Lab)
	if p.SelectedArch != "" {
		fmt.Fprintf(&sb, "Arch: %s\n", p.SelectedArch.Label())
	}
	for i, pr := range p.Products {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, pr.Name)
		for _, side := range []struct {
			label string
			cfg   slip.ArchConfig
			on    bool
		}{
			{"Upper", pr.MaxillaryConfig, pr.Type != slip.ArchLower},
			{"Lower", pr.MandibularConfig, pr.Type != slip.ArchUpper},
		} {
			if side.on {
				fmt.Fprintf(&sb, "   %s: %s, %s\n", side.label, side.cfg.Grade, side.cfg.Stage)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
