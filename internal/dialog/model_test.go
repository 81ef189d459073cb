package dialog

import (
	"encoding/json"
	"testing"
)

type nested struct {
	Step  int    `json:"step"`
	Name  string `json:"name"`
	Items []int  `json:"items"`
}

func TestPayloadSurvivesJSON(t *testing.T) {
	p := Payload{}
	if err := PutJSON(p, KeySession, nested{Step: 3, Name: "Jane Doe", Items: []int{1, 2}}); err != nil {
		t.Fatal(err)
	}
	p[KeyLastMID] = 42

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	back := Payload{}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}

	var got nested
	ok, err := GetJSON(back, KeySession, &got)
	if !ok || err != nil {
		t.Fatalf("Expected session to decode, got %v, %v", ok, err)
	}
	if got.Step != 3 || got.Name != "Jane Doe" || len(got.Items) != 2 {
		t.Errorf("Unexpected session %+v", got)
	}
	if mid, ok := GetInt(back, KeyLastMID); !ok || mid != 42 {
		t.Errorf("Expected last_mid 42, got %d (%v)", mid, ok)
	}
}

func TestPayloadMissingKeys(t *testing.T) {
	p := Payload{"name": 5}
	if _, ok := GetString(p, "name"); ok {
		t.Error("Expected a non-string value to be rejected")
	}
	if _, ok := GetInt(p, "missing"); ok {
		t.Error("Expected a missing int to be reported")
	}
	var v nested
	if ok, err := GetJSON(p, KeySession, &v); ok || err != nil {
		t.Errorf("Expected absent session, got %v, %v", ok, err)
	}
}

func TestWizardStates(t *testing.T) {
	tests := []struct {
		s    State
		want bool
	}{
		{StateWizard, true},
		{StateIdle, false},
		{StateAwaitToken, false},
		{StateAdmRefList, false},
	}
	for _, tt := range tests {
		if got := tt.s.IsWizard(); got != tt.want {
			t.Errorf("%s.IsWizard() = %v, want %v", tt.s, got, tt.want)
		}
	}
}
