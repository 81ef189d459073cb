// Package wizard drives the "Add Slip" flow: lab or office, doctor,
// patient, category, subcategory, product, stage, then the arch modal
// that hands the selections to the slip assembler.
package wizard

import "fmt"

type Step int

const (
	StepLab Step = iota + 1
	StepDoctor
	StepPatient
	StepCategory
	StepSubcategory
	StepProduct
	StepStage
	// StepArch is the arch modal opened from StepStage, not a numbered step.
	StepArch
	StepComplete
)

var stepNames = map[Step]string{
	StepLab:         "lab",
	StepDoctor:      "doctor",
	StepPatient:     "patient",
	StepCategory:    "category",
	StepSubcategory: "subcategory",
	StepProduct:     "product",
	StepStage:       "stage",
	StepArch:        "arch",
	StepComplete:    "complete",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Numbered reports whether s is one of the seven stepper steps.
func (s Step) Numbered() bool { return s >= StepLab && s <= StepStage }

func ParseStep(name string) (Step, bool) {
	for s, n := range stepNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

type Event int

const (
	EvSelectLab Event = iota + 1
	EvSelectDoctor
	EvAutoDoctor
	EvSubmitPatient
	EvSelectCategory
	EvSelectSubcategory
	EvSelectProduct
	EvOpenArch
	EvChangeProduct
	EvConfirmArch
	EvNext
	EvBack
	EvClearCategory
	EvClearSubcategory
	EvClearProduct
)

var eventNames = map[Event]string{
	EvSelectLab:         "select_lab",
	EvSelectDoctor:      "select_doctor",
	EvAutoDoctor:        "auto_doctor",
	EvSubmitPatient:     "submit_patient",
	EvSelectCategory:    "select_category",
	EvSelectSubcategory: "select_subcategory",
	EvSelectProduct:     "select_product",
	EvOpenArch:          "open_arch",
	EvChangeProduct:     "change_product",
	EvConfirmArch:       "confirm_arch",
	EvNext:              "next",
	EvBack:              "back",
	EvClearCategory:     "clear_category",
	EvClearSubcategory:  "clear_subcategory",
	EvClearProduct:      "clear_product",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type edge struct {
	from Step
	ev   Event
}

var table = buildTable()

func buildTable() map[edge]Step {
	t := map[edge]Step{
		{StepLab, EvSelectLab}:                 StepDoctor,
		{StepDoctor, EvSelectDoctor}:           StepPatient,
		{StepDoctor, EvAutoDoctor}:             StepPatient,
		{StepPatient, EvSubmitPatient}:         StepCategory,
		{StepCategory, EvSelectCategory}:       StepSubcategory,
		{StepSubcategory, EvSelectSubcategory}: StepProduct,
		{StepProduct, EvSelectProduct}:         StepStage,
		{StepStage, EvOpenArch}:                StepArch,
		{StepArch, EvChangeProduct}:            StepProduct,
		{StepArch, EvConfirmArch}:              StepComplete,
		{StepStage, EvNext}:                    StepArch,
		{StepArch, EvBack}:                     StepStage,
	}
	for s := StepLab; s < StepStage; s++ {
		t[edge{s, EvNext}] = s + 1
	}
	for s := StepDoctor; s <= StepStage; s++ {
		t[edge{s, EvBack}] = s - 1
	}
	for _, s := range []Step{StepSubcategory, StepProduct, StepStage, StepArch} {
		t[edge{s, EvClearCategory}] = StepCategory
	}
	for _, s := range []Step{StepProduct, StepStage, StepArch} {
		t[edge{s, EvClearSubcategory}] = StepSubcategory
	}
	for _, s := range []Step{StepStage, StepArch} {
		t[edge{s, EvClearProduct}] = StepProduct
	}
	return t
}

// Transition looks up the step ev leads to from from.
func Transition(from Step, ev Event) (Step, bool) {
	to, ok := table[edge{from, ev}]
	return to, ok
}
