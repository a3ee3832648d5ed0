// Package storage persists pipeline artifacts (tables, models, reports) as
// named blobs.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/refset/telco-churn-scoring/internal/dataset"
)

// ErrNotFound is returned when no artifact has the requested name.
var ErrNotFound = errors.New("artifact not found")

// Store is a name to blob lookup. Names are slash-separated relative paths.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, body []byte) error
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name required")
	}
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("artifact name %q escapes the store", name)
	}
	return nil
}

// SaveTable writes t as CSV under name.
func SaveTable(ctx context.Context, s Store, name string, t *dataset.Table) error {
	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, t); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Save(ctx, name, buf.Bytes())
}

// LoadTable reads the CSV table stored under name. types decides which
// columns decode as numbers; nil keeps every cell a string.
func LoadTable(ctx context.Context, s Store, name string, types dataset.Typer) (*dataset.Table, error) {
	body, err := s.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	t, err := dataset.ReadCSV(bytes.NewReader(body), types)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return t, nil
}

// SaveJSON writes v as indented JSON under name.
func SaveJSON(ctx context.Context, s Store, name string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Save(ctx, name, body)
}

// LoadJSON decodes the JSON stored under name into v.
func LoadJSON(ctx context.Context, s Store, name string, v any) error {
	body, err := s.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
