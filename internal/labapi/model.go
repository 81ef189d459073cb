package labapi

// Canonical shapes handed to the rest of the bot. The wire variants are
// mapped onto these in wire.go and never leave the package.

type Entity struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
	Status  string `json:"status,omitempty"`
}

type Doctor struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

type Subcategory struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
}

type Grade struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

type Stage struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price,omitempty"`
	Days  int     `json:"days,omitempty"`
}

type Extraction struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"is_default"`
}

type StageType string

const (
	StageSingle   StageType = "single"
	StageMultiple StageType = "multiple"
)

// Product is a catalog entry. Grades, Stages and Extractions may be partial
// or empty; ProductDetail is authoritative for them.
type Product struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	CategoryID      int64        `json:"category_id,omitempty"`
	CategoryName    string       `json:"category_name,omitempty"`
	SubcategoryID   int64        `json:"subcategory_id,omitempty"`
	SubcategoryName string       `json:"subcategory_name,omitempty"`
	StageType       StageType    `json:"stage_type,omitempty"`
	ImageURL        string       `json:"image_url,omitempty"`
	Grades          []Grade      `json:"grades,omitempty"`
	Stages          []Stage      `json:"stages,omitempty"`
	Extractions     []Extraction `json:"extractions,omitempty"`
}

type ProductDetail struct {
	ID          int64        `json:"id"`
	Grades      []Grade      `json:"grades"`
	Stages      []Stage      `json:"stages"`
	Extractions []Extraction `json:"extractions"`
}

type ProductQuery struct {
	PerPage       int
	Page          int
	Search        string
	SubcategoryID int64
	SortBy        string
	SortOrder     string
	Category      string
	SubCategory   string
	Grade         string
	Stage         string
}

type Customer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

// Profile is the session record returned by /me.
type Profile struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Roles     []string   `json:"roles"`
	Customers []Customer `json:"customers"`
}
