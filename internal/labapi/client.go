// Package labapi is the HTTP+JSON client for the dental lab backend. It
// covers the reference data the slip wizard needs (connections, doctors,
// catalog, product detail, categories) and the admin reference lists.
// Responses are normalised into the canonical types of model.go.
package labapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Spok95/slip-bot/internal/metrics"
	"github.com/juju/ratelimit"
)

var (
	ErrUnauthorized = errors.New("labapi: unauthorized")
	ErrNotFound     = errors.New("labapi: not found")
)

// StatusError is returned for non-2xx answers other than 401 and 404.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("labapi: status %d: %s", e.Status, e.Body)
}

type Options struct {
	BaseURL string
	// Timeout bounds each HTTP request; zero means none and the caller's
	// context is the only limit.
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int64
	Lang          string
}

type Client struct {
	base   string
	http   *http.Client
	bucket *ratelimit.Bucket
	lang   string
	token  string
	log    *slog.Logger
}

func New(opts Options, log *slog.Logger) *Client {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	return &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		http:   &http.Client{Timeout: opts.Timeout},
		bucket: ratelimit.NewBucketWithRate(opts.RatePerSecond, opts.Burst),
		lang:   opts.Lang,
		log:    log.With("component", "labapi"),
	}
}

// WithToken returns a copy bound to a user's bearer token. The copy shares
// the HTTP client and the rate limit bucket.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Lang() string { return c.lang }

/*** TRANSPORT ***/

func (c *Client) wait(ctx context.Context) error {
	d := c.bucket.Take(1)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, q url.Values, body any) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.lang)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.LabAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: snippet}
	}
	c.log.Debug("labapi request", "endpoint", endpoint, "status", resp.StatusCode, "took", time.Since(start))
	return data, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) (json.RawMessage, error) {
	return c.do(ctx, endpoint, http.MethodGet, path, q, nil)
}

/*** REFERENCE DATA ***/

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	raw, err := c.get(ctx, "me", "/v1/me", nil)
	if err != nil {
		return nil, err
	}
	w, err := decodeOne[wireProfile](raw)
	if err != nil {
		return nil, fmt.Errorf("me: decode: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("me: %w", ErrNotFound)
	}
	p := w.canonical()
	return &p, nil
}

func (c *Client) connections(ctx context.Context, kind string) ([]Entity, error) {
	raw, err := c.get(ctx, "connections_"+kind, "/v1/connections", url.Values{"type": {kind}})
	if err != nil {
		return nil, err
	}
	ws, err := decodeList[wireConnection](raw)
	if err != nil {
		return nil, fmt.Errorf("connections: decode: %w", err)
	}
	out := make([]Entity, 0, len(ws))
	for _, w := range ws {
		e := w.Lab
		if kind == "office" {
			e = w.Office
		}
		if e == nil || e.ID == 0 {
			continue
		}
		out = append(out, e.canonical(w.Status))
	}
	return out, nil
}

func (c *Client) ConnectedLabs(ctx context.Context) ([]Entity, error) {
	return c.connections(ctx, "lab")
}

func (c *Client) ConnectedOffices(ctx context.Context) ([]Entity, error) {
	return c.connections(ctx, "office")
}

func (c *Client) OfficeDoctors(ctx context.Context, customerID int64) ([]Doctor, error) {
	raw, err := c.get(ctx, "office_doctors", fmt.Sprintf("/v1/customers/%d/doctors", customerID), nil)
	if err != nil {
		return nil, err
	}
	ws, err := decodeList[wireDoctor](raw)
	if err != nil {
		return nil, fmt.Errorf("doctors: decode: %w", err)
	}
	out := make([]Doctor, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.canonical())
	}
	return out, nil
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	setInt := func(k string, n int64) {
		if n > 0 {
			v.Set(k, strconv.FormatInt(n, 10))
		}
	}
	setStr := func(k, s string) {
		if s = strings.TrimSpace(s); s != "" {
			v.Set(k, s)
		}
	}
	setInt("per_page", int64(q.PerPage))
	setInt("page", int64(q.Page))
	setStr("search", q.Search)
	setInt("subcategory_id", q.SubcategoryID)
	setStr("sort_by", q.SortBy)
	setStr("sort_order", q.SortOrder)
	setStr("category", q.Category)
	setStr("sub_category", q.SubCategory)
	setStr("grade", q.Grade)
	setStr("stage", q.Stage)
	return v
}

func (c *Client) LabProducts(ctx context.Context, labID int64, q ProductQuery) ([]Product, error) {
	raw, err := c.get(ctx, "lab_products", fmt.Sprintf("/v1/labs/%d/products", labID), q.values())
	if err != nil {
		return nil, err
	}
	ws, err := decodeList[wireProduct](raw)
	if err != nil {
		return nil, fmt.Errorf("products: decode: %w", err)
	}
	out := make([]Product, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.canonical())
	}
	return out, nil
}

// ProductDetail returns nil, nil when the API answers with an empty body.
func (c *Client) ProductDetail(ctx context.Context, productID, labID int64) (*ProductDetail, error) {
	q := url.Values{}
	if labID > 0 {
		q.Set("lab_id", strconv.FormatInt(labID, 10))
	}
	raw, err := c.get(ctx, "product_detail", fmt.Sprintf("/v1/products/%d", productID), q)
	if err != nil {
		return nil, err
	}
	w, err := decodeOne[wireProduct](raw)
	if err != nil {
		return nil, fmt.Errorf("product detail: decode: %w", err)
	}
	if w == nil {
		return nil, nil
	}
	d := w.detail()
	if d.ID == 0 {
		d.ID = productID
	}
	return &d, nil
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	raw, err := c.get(ctx, "categories", "/v1/categories", url.Values{"lang": {c.lang}})
	if err != nil {
		return nil, err
	}
	ws, err := decodeList[wireCategory](raw)
	if err != nil {
		return nil, fmt.Errorf("categories: decode: %w", err)
	}
	out := make([]Category, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.canonical())
	}
	return out, nil
}

func (c *Client) Subcategories(ctx context.Context, categoryID int64) ([]Subcategory, error) {
	raw, err := c.get(ctx, "subcategories", fmt.Sprintf("/v1/categories/%d/subcategories", categoryID), url.Values{"lang": {c.lang}})
	if err != nil {
		return nil, err
	}
	ws, err := decodeList[wireSubcategory](raw)
	if err != nil {
		return nil, fmt.Errorf("subcategories: decode: %w", err)
	}
	out := make([]Subcategory, 0, len(ws))
	for _, w := range ws {
		s := w.canonical()
		if s.CategoryID == 0 {
			s.CategoryID = categoryID
		}
		out = append(out, s)
	}
	return out, nil
}
