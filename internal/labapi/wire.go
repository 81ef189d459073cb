package labapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

/*** WIRE SHAPES ***/

// flexInt accepts 7, "7" and null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		fl, ferr := n.Float64()
		if ferr != nil {
			return err
		}
		i = int64(fl)
	}
	*f = flexInt(i)
	return nil
}

// flexFloat accepts 12.5, "12.50" and null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// yesNo accepts "Yes"/"No", true/false and 1/0.
type yesNo bool

func (y *yesNo) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "yes", "true", "1", "y":
		*y = true
	default:
		*y = false
	}
	return nil
}

type wireImage struct {
	ImageURL    string `json:"image_url"`
	ImageURLURL string `json:"image_url_url"`
	Image       string `json:"image"`
}

func (w wireImage) url() string {
	return firstNonEmpty(w.ImageURL, w.ImageURLURL, w.Image)
}

type wireEntity struct {
	ID      flexInt `json:"id"`
	Name    string  `json:"name"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	LogoURL string  `json:"logo_url"`
}

type wireConnection struct {
	Lab    *wireEntity `json:"lab"`
	Office *wireEntity `json:"office"`
	Status string      `json:"status"`
}

type wireDoctor struct {
	ID           flexInt `json:"id"`
	FullName     string  `json:"full_name"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Name         string  `json:"name"`
	ProfileImage string  `json:"profile_image"`
}

type wireCategory struct {
	ID   flexInt `json:"id"`
	Name string  `json:"name"`
	wireImage
}

type wireSubcategory struct {
	ID         flexInt `json:"id"`
	CategoryID flexInt `json:"category_id"`
	SubName    string  `json:"sub_name"`
	Name       string  `json:"name"`
	wireImage
}

type wireGrade struct {
	ID        flexInt `json:"id"`
	Name      string  `json:"name"`
	IsDefault yesNo   `json:"is_default"`
}

type wireStage struct {
	ID    flexInt   `json:"id"`
	Name  string    `json:"name"`
	Price flexFloat `json:"price"`
	Days  flexInt   `json:"days"`
}

type wireExtraction struct {
	ID        flexInt `json:"id"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	IsDefault yesNo   `json:"is_default"`
}

type wireNamed struct {
	ID   flexInt `json:"id"`
	Name string  `json:"name"`
}

// UnmarshalJSON also accepts a bare name string.
func (w *wireNamed) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &w.Name)
	}
	type plain wireNamed
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*w = wireNamed(p)
	return nil
}

type wireProduct struct {
	ID              flexInt          `json:"id"`
	Name            string           `json:"name"`
	CategoryID      flexInt          `json:"category_id"`
	CategoryName    string           `json:"category_name"`
	SubcategoryID   flexInt          `json:"subcategory_id"`
	SubcategoryName string           `json:"subcategory_name"`
	Category        *wireNamed       `json:"category"`
	Subcategory     *wireNamed       `json:"subcategory"`
	StageType       string           `json:"stage_type"`
	Grades          []wireGrade      `json:"grades"`
	Stages          []wireStage      `json:"stages"`
	Extractions     []wireExtraction `json:"extractions"`
	ExtractionOpts  []wireExtraction `json:"extraction_options"`
	Data            *struct {
		Extractions []wireExtraction `json:"extractions"`
	} `json:"data"`
	wireImage
}

type wireCustomer struct {
	ID        flexInt `json:"id"`
	Name      string  `json:"name"`
	IsPrimary yesNo   `json:"is_primary"`
}

type wireProfile struct {
	ID        flexInt        `json:"id"`
	Name      string         `json:"name"`
	FullName  string         `json:"full_name"`
	Roles     []string       `json:"roles"`
	Customers []wireCustomer `json:"customers"`
}

/*** NORMALIZATION ***/

// unwrap strips a {"data": ...} envelope. An object that carries its own
// "id" is returned as is, so a product with a nested data.extractions block
// is not mistaken for an envelope.
func unwrap(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if _, ok := obj["id"]; ok {
		return raw
	}
	if inner, ok := obj["data"]; ok {
		return unwrap(inner)
	}
	return raw
}

func decodeList[W any](raw json.RawMessage) ([]W, error) {
	raw = unwrap(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] != '[' {
		// some list endpoints answer {"items": [...]} or {"results": [...]}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		for _, k := range []string{"items", "results", "rows"} {
			if inner, ok := obj[k]; ok {
				return decodeList[W](inner)
			}
		}
		return nil, nil
	}
	var out []W
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeOne[W any](raw json.RawMessage) (*W, error) {
	raw = unwrap(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var w W
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (w wireEntity) canonical(status string) Entity {
	return Entity{
		ID:      int64(w.ID),
		Name:    strings.TrimSpace(w.Name),
		City:    w.City,
		State:   w.State,
		LogoURL: w.LogoURL,
		Status:  status,
	}
}

func (w wireDoctor) canonical() Doctor {
	name := strings.TrimSpace(w.FullName)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(w.FirstName) + " " + strings.TrimSpace(w.LastName))
	}
	if name == "" {
		name = strings.TrimSpace(w.Name)
	}
	return Doctor{ID: int64(w.ID), Name: name, ImageURL: w.ProfileImage}
}

func (w wireCategory) canonical() Category {
	return Category{ID: int64(w.ID), Name: strings.TrimSpace(w.Name), ImageURL: w.url()}
}

func (w wireSubcategory) canonical() Subcategory {
	return Subcategory{
		ID:         int64(w.ID),
		CategoryID: int64(w.CategoryID),
		Name:       strings.TrimSpace(firstNonEmpty(w.SubName, w.Name)),
		ImageURL:   w.url(),
	}
}

func grades(in []wireGrade) []Grade {
	out := make([]Grade, 0, len(in))
	for _, g := range in {
		out = append(out, Grade{ID: int64(g.ID), Name: g.Name, IsDefault: bool(g.IsDefault)})
	}
	return out
}

func stages(in []wireStage) []Stage {
	out := make([]Stage, 0, len(in))
	for _, s := range in {
		out = append(out, Stage{ID: int64(s.ID), Name: s.Name, Price: float64(s.Price), Days: int(s.Days)})
	}
	return out
}

func extractions(in []wireExtraction) []Extraction {
	out := make([]Extraction, 0, len(in))
	for _, e := range in {
		out = append(out, Extraction{ID: int64(e.ID), Name: e.Name, Color: e.Color, IsDefault: bool(e.IsDefault)})
	}
	return out
}

// pickExtractions returns the first non-empty of the three shapes the API
// uses for extraction options.
func (w wireProduct) pickExtractions() []Extraction {
	if len(w.Extractions) > 0 {
		return extractions(w.Extractions)
	}
	if w.Data != nil && len(w.Data.Extractions) > 0 {
		return extractions(w.Data.Extractions)
	}
	if len(w.ExtractionOpts) > 0 {
		return extractions(w.ExtractionOpts)
	}
	return nil
}

func (w wireProduct) canonical() Product {
	p := Product{
		ID:              int64(w.ID),
		Name:            strings.TrimSpace(w.Name),
		CategoryID:      int64(w.CategoryID),
		CategoryName:    w.CategoryName,
		SubcategoryID:   int64(w.SubcategoryID),
		SubcategoryName: w.SubcategoryName,
		StageType:       StageSingle,
		ImageURL:        w.url(),
		Grades:          grades(w.Grades),
		Stages:          stages(w.Stages),
		Extractions:     w.pickExtractions(),
	}
	if w.Category != nil {
		if p.CategoryID == 0 {
			p.CategoryID = int64(w.Category.ID)
		}
		if p.CategoryName == "" {
			p.CategoryName = w.Category.Name
		}
	}
	if w.Subcategory != nil {
		if p.SubcategoryID == 0 {
			p.SubcategoryID = int64(w.Subcategory.ID)
		}
		if p.SubcategoryName == "" {
			p.SubcategoryName = w.Subcategory.Name
		}
	}
	if strings.EqualFold(w.StageType, string(StageMultiple)) {
		p.StageType = StageMultiple
	}
	return p
}

func (w wireProduct) detail() ProductDetail {
	return ProductDetail{
		ID:          int64(w.ID),
		Grades:      grades(w.Grades),
		Stages:      stages(w.Stages),
		Extractions: w.pickExtractions(),
	}
}

func (w wireProfile) canonical() Profile {
	p := Profile{
		ID:    int64(w.ID),
		Name:  strings.TrimSpace(firstNonEmpty(w.FullName, w.Name)),
		Roles: w.Roles,
	}
	for _, c := range w.Customers {
		p.Customers = append(p.Customers, Customer{ID: int64(c.ID), Name: c.Name, IsPrimary: bool(c.IsPrimary)})
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
