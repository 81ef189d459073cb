package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

const (
	btnAddSlip = "➕ Add slip"
	btnMySlip  = "📋 My slip"
	btnAdmin   = "🗂 Reference lists"
)

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func cancelConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, discard", "nav:cancel:yes"),
			tgbotapi.NewInlineKeyboardButtonData("No, keep editing", "nav:cancel:no"),
		),
	)
}

func userReplyKeyboard(labAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(btnAddSlip), tgbotapi.NewKeyboardButton(btnMySlip)},
	}
	if labAdmin {
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(btnAdmin)})
	}
	return tgbotapi.ReplyKeyboardMarkup{ResizeKeyboard: true, Keyboard: rows}
}

func caseDesignKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnAddSlip, "cd:add"),
		),
	)
}

/*** WIZARD ***/

// wizardKeyboard lays out the buttons for the current step: the choices,
// the breadcrumb clear buttons and the navigation row.
func wizardKeyboard(v wizard.View) tgbotapi.InlineKeyboardMarkup {
	if v.Session.ConfirmingCancel {
		return cancelConfirmKeyboard()
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	step := v.Step()

	if v.Err() != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", "wz:retry"),
		))
	}

	switch step {
	case wizard.StepLab:
		for _, e := range v.Labs {
			label := e.Name
			if e.ID == v.Session.DefaultEntityID {
				label = "⭐ " + label
			}
			if e.ID == v.Session.Selection.LabID {
				label = "✅ " + label
			}
			rows = append(rows, dataRow(label, fmt.Sprintf("wz:lab:%d", e.ID)))
		}
	case wizard.StepDoctor:
		for _, d := range v.Doctors {
			rows = append(rows, dataRow(checked(d.Name, d.ID == v.Session.Selection.DoctorID), fmt.Sprintf("wz:doc:%d", d.ID)))
		}
	case wizard.StepCategory:
		rows = append(rows, pairs(v.Categories, func(c labapi.Category) (string, string) {
			return c.Name, fmt.Sprintf("wz:cat:%d", c.ID)
		})...)
	case wizard.StepSubcategory:
		rows = append(rows, pairs(v.Subcategories, func(s labapi.Subcategory) (string, string) {
			return s.Name, fmt.Sprintf("wz:sub:%d", s.ID)
		})...)
	case wizard.StepProduct:
		for _, p := range v.Products {
			rows = append(rows, dataRow(p.Name, fmt.Sprintf("wz:prod:%d", p.ID)))
		}
		rows = append(rows, productPagingRow(v))
	case wizard.StepStage:
		for _, s := range v.Stages {
			rows = append(rows, dataRow(checked(s.Name, stageSelected(v, s)), "wz:stage:"+wizard.StageKey(s)))
		}
	case wizard.StepArch:
		return archKeyboard(v)
	}

	if crumbs := clearRow(step); len(crumbs) > 0 {
		rows = append(rows, crumbs)
	}
	rows = append(rows, wizardNavRow(v))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func archKeyboard(v wizard.View) tgbotapi.InlineKeyboardMarkup {
	sel := v.Session.Selection.Arch
	var archRow []tgbotapi.InlineKeyboardButton
	for _, a := range []slip.Arch{slip.ArchUpper, slip.ArchLower, slip.ArchBoth} {
		archRow = append(archRow, tgbotapi.NewInlineKeyboardButtonData(checked(a.Label(), a == sel), "wz:arch:"+string(a)))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{archRow}
	if sel != "" && !v.Session.Assembling {
		rows = append(rows, dataRow("✔️ Continue", "wz:confirm"))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔁 Change product", "wz:change"),
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "nav:back"),
	))
	if crumbs := clearRow(wizard.StepArch); len(crumbs) > 0 {
		rows = append(rows, crumbs)
	}
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func productPagingRow(v wizard.View) []tgbotapi.InlineKeyboardButton {
	page := max(v.Session.Page, 1)
	var row []tgbotapi.InlineKeyboardButton
	if page > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("wz:page:%d", page-1)))
	}
	order := "A→Z"
	if v.Session.SortDesc {
		order = "Z→A"
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData("Sort "+order, "wz:sort"))
	if v.HasMore {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("wz:page:%d", page+1)))
	}
	return row
}

// clearRow offers the breadcrumb clear buttons valid from step.
func clearRow(step wizard.Step) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range []struct {
		ev    wizard.Event
		label string
		data  string
	}{
		{wizard.EvClearCategory, "✖ Category", "wz:clr:cat"},
		{wizard.EvClearSubcategory, "✖ Subcategory", "wz:clr:sub"},
		{wizard.EvClearProduct, "✖ Product", "wz:clr:prod"},
	} {
		if _, ok := wizard.Transition(step, c.ev); ok {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.label, c.data))
		}
	}
	return row
}

func wizardNavRow(v wizard.View) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	if _, ok := wizard.Transition(v.Step(), wizard.EvBack); ok {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "nav:back"))
	}
	if _, ok := wizard.Transition(v.Step(), wizard.EvNext); ok && v.CanAdvance {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", "wz:next"))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "nav:cancel"))
}

/*** HELPERS ***/

func dataRow(label, data string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data))
}

// pairs lays items out two per row.
func pairs[T any](items []T, btn func(T) (string, string)) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(items); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for _, it := range items[i:min(i+2, len(items))] {
			label, data := btn(it)
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
		}
		rows = append(rows, row)
	}
	return rows
}

func checked(label string, on bool) string {
	if on {
		return "✅ " + label
	}
	return label
}

func stageSelected(v wizard.View, s labapi.Stage) bool {
	for _, sel := range v.Session.Selection.Stages {
		if sel == wizard.StageKey(s) || sel == s.Name {
			return true
		}
	}
	return false
}
