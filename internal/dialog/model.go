package dialog

import (
	"encoding/json"
	"strings"
)

type State string

const (
	StateIdle State = "idle"

	// Login
	StateAwaitToken State = "await_token"

	// Wizard. The payload carries the serialized wizard session under
	// KeySession and the id of the message the wizard is rendered in.
	StateWizard State = "slip:wizard"

	// Reference lists
	StateAdmRefMenu   State = "adm_ref_menu"
	StateAdmRefList   State = "adm_ref_list"
	StateAdmRefItem   State = "adm_ref_item"
	StateAdmRefSearch State = "adm_ref_search"
)

const (
	KeySession  = "session"
	KeyLastMID  = "last_mid"
	KeyResource = "res"
	KeyRecord   = "rec_id"
	KeyPage     = "page"
	KeySearch   = "search"
)

// IsWizard reports whether the chat is inside the Add Slip wizard.
func (s State) IsWizard() bool { return strings.HasPrefix(string(s), "slip:") }

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}

// GetString reads a string from payload.
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt reads an integer; after a JSON round trip numbers come back as
// float64.
func GetInt(p Payload, key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// PutJSON stores v under key as a nested JSON object.
func PutJSON(p Payload, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var nested any
	if err := json.Unmarshal(raw, &nested); err != nil {
		return err
	}
	p[key] = nested
	return nil
}

// GetJSON decodes the value under key into v. It returns false when the key
// is absent.
func GetJSON(p Payload, key string, v any) (bool, error) {
	nested, ok := p[key]
	if !ok || nested == nil {
		return false, nil
	}
	raw, err := json.Marshal(nested)
	if err != nil {
		return true, err
	}
	return true, json.Unmarshal(raw, v)
}
