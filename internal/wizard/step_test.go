package wizard

import "testing"

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from Step
		ev   Event
		want Step
	}{
		{StepLab, EvSelectLab, StepDoctor},
		{StepDoctor, EvSelectDoctor, StepPatient},
		{StepDoctor, EvAutoDoctor, StepPatient},
		{StepPatient, EvSubmitPatient, StepCategory},
		{StepCategory, EvSelectCategory, StepSubcategory},
		{StepSubcategory, EvSelectSubcategory, StepProduct},
		{StepProduct, EvSelectProduct, StepStage},
		{StepStage, EvOpenArch, StepArch},
		{StepArch, EvChangeProduct, StepProduct},
		{StepArch, EvConfirmArch, StepComplete},
		{StepArch, EvBack, StepStage},
		{StepStage, EvNext, StepArch},
		{StepArch, EvClearCategory, StepCategory},
		{StepStage, EvClearSubcategory, StepSubcategory},
		{StepStage, EvClearProduct, StepProduct},
	}
	for _, tt := range tests {
		got, ok := Transition(tt.from, tt.ev)
		if !ok || got != tt.want {
			t.Errorf("%s --%s--> got %s (%v), want %s", tt.from, tt.ev, got, ok, tt.want)
		}
	}
}

func TestNextAndBackMoveByOne(t *testing.T) {
	for s := StepLab; s < StepStage; s++ {
		if got, ok := Transition(s, EvNext); !ok || got != s+1 {
			t.Errorf("Next from %s: got %s", s, got)
		}
	}
	for s := StepDoctor; s <= StepStage; s++ {
		if got, ok := Transition(s, EvBack); !ok || got != s-1 {
			t.Errorf("Back from %s: got %s", s, got)
		}
	}
}

func TestDisallowedTransitions(t *testing.T) {
	tests := []struct {
		from Step
		ev   Event
	}{
		{StepLab, EvBack},
		{StepComplete, EvBack},
		{StepComplete, EvNext},
		{StepPatient, EvSelectCategory},
		{StepCategory, EvClearCategory},
		{StepSubcategory, EvClearSubcategory},
		{StepProduct, EvClearProduct},
		{StepStage, EvConfirmArch},
		{StepLab, EvAutoDoctor},
	}
	for _, tt := range tests {
		if to, ok := Transition(tt.from, tt.ev); ok {
			t.Errorf("Expected %s from %s to be rejected, got %s", tt.ev, tt.from, to)
		}
	}
}

func TestStepNames(t *testing.T) {
	for s := StepLab; s <= StepComplete; s++ {
		got, ok := ParseStep(s.String())
		if !ok || got != s {
			t.Errorf("ParseStep(%q) = %s, %v", s.String(), got, ok)
		}
	}
	if StepArch.Numbered() || !StepStage.Numbered() {
		t.Error("Expected the arch modal to sit outside the numbered steps")
	}
}
