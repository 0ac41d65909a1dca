package agenda

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const yamlOutline = `
items:
  - title: Budget
    description: Q3 numbers
    children:
      - title: Travel
        children:
          - title: Flights
      - title: Hiring
  - id: fixed-id
    title: Roadmap
`

const tomlOutline = `
[[items]]
title = "Budget"

  [[items.children]]
  title = "Travel"

[[items]]
title = "Roadmap"
`

func TestParseOutline_YAML(t *testing.T) {
	items, err := ParseOutline([]byte(yamlOutline), ".yaml")
	if err != nil {
		t.Fatalf("ParseOutline: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}

	tree, err := NewTree(items)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	roots := tree.Roots()
	if roots[0].Title != "Budget" || roots[1].ID != "fixed-id" {
		t.Errorf("unexpected roots: %q, %q", roots[0].Title, roots[1].ID)
	}
	if len(roots[0].Children) != 2 || roots[0].Children[0].Children[0].Title != "Flights" {
		t.Error("expected Budget > Travel > Flights")
	}
	if roots[0].Description != "Q3 numbers" {
		t.Errorf("description = %q", roots[0].Description)
	}
}

func TestParseOutline_TOML(t *testing.T) {
	items, err := ParseOutline([]byte(tomlOutline), ".toml")
	if err != nil {
		t.Fatalf("ParseOutline: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[1].ParentID != items[0].ID {
		t.Error("Travel should be a child of Budget")
	}
}

func TestParseOutline_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agenda.json")
	os.WriteFile(path, []byte(`{"items":[{"title":"Only"}]}`), 0644)

	items, err := LoadOutline(path)
	if err != nil {
		t.Fatalf("LoadOutline: %v", err)
	}
	if len(items) != 1 || items[0].ID == "" || items[0].Status != StatusPending {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestParseOutline_Errors(t *testing.T) {
	tooDeep := `
items:
  - title: A
    children:
      - title: B
        children:
          - title: C
            children:
              - title: D
`
	if _, err := ParseOutline([]byte(tooDeep), ".yml"); !errors.Is(err, ErrInvalidOutline) {
		t.Errorf("too deep: err = %v", err)
	}
	if _, err := ParseOutline([]byte("items:\n  - title: ''\n"), ".yaml"); !errors.Is(err, ErrInvalidOutline) {
		t.Errorf("empty title: err = %v", err)
	}
	if _, err := ParseOutline([]byte("items: []"), ".yaml"); !errors.Is(err, ErrInvalidOutline) {
		t.Errorf("no items: err = %v", err)
	}
	if _, err := ParseOutline([]byte("x"), ".txt"); !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("txt: err = %v", err)
	}
}
