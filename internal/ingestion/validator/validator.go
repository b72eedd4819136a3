// Package validator parses and validates ingest request bodies. Validation
// does not stop at the first problem: every field is checked and all
// violations are returned together so the caller can fix them in one pass.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
)

const maxTitleLength = 200

// ErrMalformedJSON is returned by Parse when the body is not valid JSON.
var ErrMalformedJSON = errors.New("malformed JSON body")

// ValidationError holds field-level violation messages in field order.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

// Fields is a decoded but unvalidated JSON object.
type Fields map[string]json.RawMessage

// Parse decodes body into its top-level fields. Syntax errors return
// ErrMalformedJSON; valid JSON that is not an object returns a
// ValidationError.
func Parse(body []byte) (Fields, error) {
	if !json.Valid(body) {
		return nil, ErrMalformedJSON
	}
	var fields Fields
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &ValidationError{Errors: []string{"body: must be a JSON object"}}
	}
	return fields, nil
}

// Validate checks fields against the asset payload schema and returns the
// decoded payload, with optional fields defaulted.
func Validate(fields Fields) (*ingestion.AssetPayload, error) {
	v := &collector{}
	p := &ingestion.AssetPayload{
		Platform: []string{},
		Tags:     []string{},
	}

	if raw, ok := present(fields, "title"); !ok {
		v.add("title", "is required")
	} else if err := json.Unmarshal(raw, &p.Title); err != nil {
		v.add("title", "must be a string")
	} else if strings.TrimSpace(p.Title) == "" {
		v.add("title", "must not be empty")
	} else if utf8.RuneCountInString(p.Title) > maxTitleLength {
		v.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	if raw, ok := present(fields, "description"); !ok {
		v.add("description", "is required")
	} else if err := json.Unmarshal(raw, &p.Description); err != nil {
		v.add("description", "must be a string")
	}

	if raw, ok := present(fields, "asset_type"); !ok {
		v.add("asset_type", "is required")
	} else if err := json.Unmarshal(raw, &p.AssetType); err != nil {
		v.add("asset_type", "must be a string")
	} else if !p.AssetType.Valid() {
		v.add("asset_type", "must be one of "+assetTypeList())
	}

	if raw, ok := present(fields, "content"); !ok {
		v.add("content", "is required")
	} else if !isObject(raw) {
		v.add("content", "must be a JSON object")
	} else {
		p.Content = append(json.RawMessage(nil), raw...)
	}

	if raw, ok := present(fields, "platform"); ok {
		if list, ok := stringArray(raw); ok {
			p.Platform = list
		} else {
			v.add("platform", "must be an array of strings")
		}
	}

	if raw, ok := present(fields, "tags"); ok {
		if list, ok := stringArray(raw); ok {
			p.Tags = list
		} else {
			v.add("tags", "must be an array of strings")
		}
	}

	if raw, ok := present(fields, "is_premium"); ok {
		if err := json.Unmarshal(raw, &p.IsPremium); err != nil {
			v.add("is_premium", "must be a boolean")
		}
	}

	if len(v.errs) > 0 {
		return nil, &ValidationError{Errors: v.errs}
	}
	return p, nil
}

type collector struct {
	errs []string
}

func (c *collector) add(field, msg string) {
	c.errs = append(c.errs, field+": "+msg)
}

// present returns the raw value for key, treating JSON null as absent.
func present(fields Fields, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// stringArray decodes a JSON array whose elements are all strings. A null
// element is rejected; encoding/json would otherwise leave it as "".
func stringArray(raw json.RawMessage) ([]string, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return nil, false
	}
	out := make([]string, len(elems))
	for i, elem := range elems {
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) == 0 || trimmed[0] != '"' {
			return nil, false
		}
		if err := json.Unmarshal(trimmed, &out[i]); err != nil {
			return nil, false
		}
	}
	return out, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func assetTypeList() string {
	names := make([]string, len(ingestion.AssetTypes))
	for i, t := range ingestion.AssetTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
