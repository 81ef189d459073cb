package labapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Resource names an admin reference list served under /v1/<resource>.
type Resource string

const (
	ResGrades      Resource = "grades"
	ResMaterials   Resource = "materials"
	ResStages      Resource = "stages"
	ResRetentions  Resource = "retentions"
	ResTeethShades Resource = "teeth-shade-brands"
	ResCustomers   Resource = "customers"
	ResConnections Resource = "connections"
)

var Resources = []Resource{ResGrades, ResMaterials, ResStages, ResRetentions, ResTeethShades, ResCustomers, ResConnections}

func (r Resource) Title() string {
	switch r {
	case ResGrades:
		return "Grades"
	case ResMaterials:
		return "Materials"
	case ResStages:
		return "Stages"
	case ResRetentions:
		return "Retentions"
	case ResTeethShades:
		return "Teeth shade brands"
	case ResCustomers:
		return "Customers"
	case ResConnections:
		return "Connections"
	}
	return string(r)
}

func ParseResource(s string) (Resource, bool) {
	for _, r := range Resources {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Record is a loosely typed admin row. Fields keeps everything the API sent.
type Record struct {
	ID     int64
	Name   string
	Status string
	Fields map[string]any
}

// Active reports whether the record's status reads as enabled.
func (r Record) Active() bool {
	switch strings.ToLower(r.Status) {
	case "", "active", "enabled", "approved", "1", "true", "yes":
		return true
	}
	return false
}

type ListParams struct {
	Page    int
	PerPage int
	Search  string
}

type Page struct {
	Items    []Record
	Page     int
	LastPage int
	Total    int
}

func recordFromMap(m map[string]any) Record {
	r := Record{Fields: m}
	switch v := m["id"].(type) {
	case float64:
		r.ID = int64(v)
	case string:
		r.ID, _ = strconv.ParseInt(v, 10, 64)
	}
	for _, k := range []string{"name", "sub_name", "brand_name", "full_name", "title"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			r.Name = s
			break
		}
	}
	if r.Name == "" {
		// connections carry the counterpart under lab/office
		for _, k := range []string{"lab", "office", "customer"} {
			if nested, ok := m[k].(map[string]any); ok {
				if s, ok := nested["name"].(string); ok {
					r.Name = s
					break
				}
			}
		}
	}
	switch v := m["status"].(type) {
	case string:
		r.Status = v
	case bool:
		r.Status = strconv.FormatBool(v)
	case float64:
		r.Status = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return r
}

func (c *Client) List(ctx context.Context, res Resource, p ListParams) (Page, error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		q.Set("search", s)
	}
	raw, err := c.get(ctx, "list_"+string(res), "/v1/"+string(res), q)
	if err != nil {
		return Page{}, err
	}
	rows, err := decodeList[map[string]any](raw)
	if err != nil {
		return Page{}, fmt.Errorf("%s: decode: %w", res, err)
	}
	page := Page{Page: max(p.Page, 1), LastPage: 1, Total: len(rows)}
	var meta struct {
		Meta struct {
			CurrentPage flexInt `json:"current_page"`
			LastPage    flexInt `json:"last_page"`
			Total       flexInt `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &meta); err == nil && meta.Meta.LastPage > 0 {
		page.Page = int(meta.Meta.CurrentPage)
		page.LastPage = int(meta.Meta.LastPage)
		page.Total = int(meta.Meta.Total)
	}
	for _, m := range rows {
		page.Items = append(page.Items, recordFromMap(m))
	}
	sort.SliceStable(page.Items, func(i, j int) bool {
		return strings.ToLower(page.Items[i].Name) < strings.ToLower(page.Items[j].Name)
	})
	return page, nil
}

func (c *Client) Get(ctx context.Context, res Resource, id int64) (*Record, error) {
	raw, err := c.get(ctx, "get_"+string(res), fmt.Sprintf("/v1/%s/%d", res, id), nil)
	if err != nil {
		return nil, err
	}
	m, err := decodeOne[map[string]any](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", res, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%s %d: %w", res, id, ErrNotFound)
	}
	r := recordFromMap(*m)
	return &r, nil
}

func (c *Client) Create(ctx context.Context, res Resource, fields map[string]any) (*Record, error) {
	raw, err := c.do(ctx, "create_"+string(res), http.MethodPost, "/v1/"+string(res), nil, fields)
	if err != nil {
		return nil, err
	}
	m, err := decodeOne[map[string]any](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode created record: %w", res, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%s: empty create response", res)
	}
	r := recordFromMap(*m)
	return &r, nil
}

func (c *Client) Update(ctx context.Context, res Resource, id int64, fields map[string]any) (*Record, error) {
	raw, err := c.do(ctx, "update_"+string(res), http.MethodPut, fmt.Sprintf("/v1/%s/%d", res, id), nil, fields)
	if err != nil {
		return nil, err
	}
	m, err := decodeOne[map[string]any](raw)
	if err != nil || m == nil {
		// some endpoints answer 204; re-read to return the current state
		return c.Get(ctx, res, id)
	}
	r := recordFromMap(*m)
	return &r, nil
}

func (c *Client) Delete(ctx context.Context, res Resource, id int64) error {
	_, err := c.do(ctx, "delete_"+string(res), http.MethodDelete, fmt.Sprintf("/v1/%s/%d", res, id), nil, nil)
	return err
}

// ToggleStatus flips a record between Active and Inactive.
func (c *Client) ToggleStatus(ctx context.Context, res Resource, id int64) (*Record, error) {
	cur, err := c.Get(ctx, res, id)
	if err != nil {
		return nil, err
	}
	next := "Inactive"
	if !cur.Active() {
		next = "Active"
	}
	return c.Update(ctx, res, id, map[string]any{"status": next})
}
