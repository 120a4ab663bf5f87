// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// body decoding for JSON and form submissions, month parameters and the
// list filter query.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"accountbook/internal/core"
)

const maxBodyBytes = 1 << 20

// ParseMonthParam reads a month from query. It accepts month=YYYY-MM or
// year=YYYY&month=M and returns fallback when the parameter is absent.
func ParseMonthParam(query url.Values, key, fallback string) (string, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return fallback, nil
	}
	if y := strings.TrimSpace(query.Get("year")); y != "" && key == "month" {
		year, errY := strconv.Atoi(y)
		month, errM := strconv.Atoi(raw)
		if errY != nil || errM != nil || month < 1 || month > 12 {
			return "", &core.ValidationError{Field: key, Err: core.ErrInvalidMonth}
		}
		return fmt.Sprintf("%04d-%02d", year, month), nil
	}
	m, err := core.ParseMonthKey(raw)
	if err != nil {
		return "", &core.ValidationError{Field: key, Err: err}
	}
	return m, nil
}

// ParseEntryFilter builds a list filter from the query parameters
// from, to, category, paymentMethod, minAmount, maxAmount, q and type.
// Absent parameters leave the criterion open.
func ParseEntryFilter(query url.Values) (core.EntryFilter, error) {
	var f core.EntryFilter
	get := func(k string) string { return sanitizeInput(query.Get(k)) }

	if v := get("from"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: "from", Err: err}
		}
		f.From = d
	}
	if v := get("to"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: "to", Err: err}
		}
		f.To = d
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From.Time) {
		return f, &core.ValidationError{Field: "to", Err: errors.New("to is before from")}
	}
	for key, dst := range map[string]**core.Money{"minAmount": &f.MinAmount, "maxAmount": &f.MaxAmount} {
		v := get(key)
		if v == "" {
			continue
		}
		m, err := core.ParseAmount(v)
		if err != nil {
			return f, &core.ValidationError{Field: key, Err: err}
		}
		*dst = &m
	}
	if v := get("type"); v != "" {
		t, err := core.ParseEntryType(v)
		if err != nil {
			return f, &core.ValidationError{Field: "type", Err: err}
		}
		f.Type = t
	}
	f.Category = get("category")
	f.PaymentMethod = get("paymentMethod")
	f.Description = get("q")
	return f, nil
}

// RequestBodyParser handles JSON and form-encoded bodies. JSON numbers are
// read back as their decimal text so amounts may be sent either way.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body once. Later calls return the first result.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]interface{})
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}
	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a trimmed string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was present in the body at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// EntryInput collects the entry form fields.
func (p *RequestBodyParser) EntryInput() core.EntryInput {
	return core.EntryInput{
		Type:           p.Get("type"),
		Date:           p.Get("date"),
		Description:    p.Get("description"),
		Category:       p.Get("category"),
		CustomCategory: p.Get("customCategory"),
		Amount:         p.Get("amount"),
		PaymentMethod:  p.Get("paymentMethod"),
	}
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseBody parses the request body or reports a 400-class error.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return nil, &core.ValidationError{Field: "body", Err: err}
	}
	return p, nil
}
