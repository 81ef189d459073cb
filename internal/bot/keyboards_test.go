package bot

import (
	"slices"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/slip-bot/internal/labapi"
	"github.com/Spok95/slip-bot/internal/slip"
	"github.com/Spok95/slip-bot/internal/wizard"
)

func callbacks(kb tgbotapi.InlineKeyboardMarkup) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out = append(out, *b.CallbackData)
			}
		}
	}
	return out
}

func labels(kb tgbotapi.InlineKeyboardMarkup) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

func viewAt(step wizard.Step) wizard.View {
	return wizard.View{Session: wizard.Session{Step: step, Page: 1}}
}

func TestWizardKeyboardLabMarks(t *testing.T) {
	v := viewAt(wizard.StepLab)
	v.Session.DefaultEntityID = 2
	v.Session.Selection.LabID = 3
	v.Labs = []labapi.Entity{{ID: 1, Name: "North"}, {ID: 2, Name: "South"}, {ID: 3, Name: "East"}}

	got := labels(wizardKeyboard(v))
	for _, want := range []string{"North", "⭐ South", "✅ East"} {
		if !slices.Contains(got, want) {
			t.Errorf("Expected button %q, got %v", want, got)
		}
	}
	if !slices.Contains(callbacks(wizardKeyboard(v)), "wz:lab:3") {
		t.Errorf("Expected wz:lab:3 callback")
	}
}

func TestWizardKeyboardNextGate(t *testing.T) {
	tests := []struct {
		name       string
		canAdvance bool
		wantNext   bool
	}{
		{"gate closed", false, false},
		{"gate open", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viewAt(wizard.StepPatient)
			v.CanAdvance = tt.canAdvance
			got := slices.Contains(callbacks(wizardKeyboard(v)), "wz:next")
			if got != tt.wantNext {
				t.Errorf("Expected next button %v, got %v", tt.wantNext, got)
			}
		})
	}
}

func TestWizardKeyboardFirstStepHasNoBack(t *testing.T) {
	cbs := callbacks(wizardKeyboard(viewAt(wizard.StepLab)))
	if slices.Contains(cbs, "nav:back") {
		t.Errorf("Expected no back button on the first step, got %v", cbs)
	}
	if !slices.Contains(cbs, "nav:cancel") {
		t.Errorf("Expected a cancel button, got %v", cbs)
	}
}

func TestClearRow(t *testing.T) {
	tests := []struct {
		step wizard.Step
		want []string
	}{
		{wizard.StepCategory, nil},
		{wizard.StepSubcategory, []string{"wz:clr:cat"}},
		{wizard.StepProduct, []string{"wz:clr:cat", "wz:clr:sub"}},
		{wizard.StepStage, []string{"wz:clr:cat", "wz:clr:sub", "wz:clr:prod"}},
	}
	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			var got []string
			for _, b := range clearRow(tt.step) {
				got = append(got, *b.CallbackData)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestArchKeyboardConfirm(t *testing.T) {
	tests := []struct {
		name       string
		arch       slip.Arch
		assembling bool
		want       bool
	}{
		{"no arch", "", false, false},
		{"arch chosen", slip.ArchBoth, false, true},
		{"saving", slip.ArchBoth, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viewAt(wizard.StepArch)
			v.Session.Selection.Arch = tt.arch
			v.Session.Assembling = tt.assembling
			got := slices.Contains(callbacks(wizardKeyboard(v)), "wz:confirm")
			if got != tt.want {
				t.Errorf("Expected continue button %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWizardKeyboardConfirmingCancel(t *testing.T) {
	v := viewAt(wizard.StepProduct)
	v.Session.ConfirmingCancel = true
	got := callbacks(wizardKeyboard(v))
	want := []string{"nav:cancel:yes", "nav:cancel:no"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestProductPaging(t *testing.T) {
	v := viewAt(wizard.StepProduct)
	v.Session.Page = 2
	v.HasMore = true
	v.Products = []labapi.Product{{ID: 99, Name: "Zirconia crown"}}

	cbs := callbacks(wizardKeyboard(v))
	for _, want := range []string{"wz:prod:99", "wz:page:1", "wz:page:3", "wz:sort"} {
		if !slices.Contains(cbs, want) {
			t.Errorf("Expected %q in %v", want, cbs)
		}
	}
}

func TestStageButtonsUseStageKey(t *testing.T) {
	v := viewAt(wizard.StepStage)
	v.Stages = []labapi.Stage{{ID: 5, Name: "Finish"}, {Name: slip.FallbackStage}}
	v.Session.Selection.Stages = []string{"5"}

	kb := wizardKeyboard(v)
	cbs := callbacks(kb)
	for _, want := range []string{"wz:stage:5", "wz:stage:" + slip.FallbackStage} {
		if !slices.Contains(cbs, want) {
			t.Errorf("Expected %q in %v", want, cbs)
		}
	}
	if !slices.Contains(labels(kb), "✅ Finish") {
		t.Errorf("Expected the selected stage to be checked, got %v", labels(kb))
	}
}

func TestPairs(t *testing.T) {
	items := []int{1, 2, 3}
	rows := pairs(items, func(i int) (string, string) { return "x", "y" })
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 1 {
		t.Errorf("Expected rows of 2 and 1, got %d rows", len(rows))
	}
}

func TestUserReplyKeyboard(t *testing.T) {
	var all []string
	for _, row := range userReplyKeyboard(true).Keyboard {
		for _, b := range row {
			all = append(all, b.Text)
		}
	}
	if !slices.Contains(all, btnAdmin) {
		t.Errorf("Expected lab admins to get %q, got %v", btnAdmin, all)
	}
	for _, row := range userReplyKeyboard(false).Keyboard {
		for _, b := range row {
			if strings.Contains(b.Text, btnAdmin) {
				t.Errorf("Expected no admin button for other roles")
			}
		}
	}
}
