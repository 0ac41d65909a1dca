package agenda

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// OutlineEntry is one nested entry of an authored agenda outline.
type OutlineEntry struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty" toml:"id"`
	Title       string         `json:"title" yaml:"title" toml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Children    []OutlineEntry `json:"children,omitempty" yaml:"children,omitempty" toml:"children"`
}

type Outline struct {
	Items []OutlineEntry `json:"items" yaml:"items" toml:"items"`
}

// LoadOutline reads an outline file. The format follows the extension:
// .yaml/.yml, .json or .toml.
func LoadOutline(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	return ParseOutline(data, filepath.Ext(path))
}

func ParseOutline(data []byte, ext string) ([]Item, error) {
	var o Outline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutline, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutline, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &o); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutline, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInput, ext)
	}
	return o.Flatten()
}

// Flatten converts the nested outline into a flat item list with parent
// references, assigning UUIDv7 ids where the outline has none.
func (o Outline) Flatten() ([]Item, error) {
	var items []Item
	var walk func(entries []OutlineEntry, parentID string, depth int) error
	walk = func(entries []OutlineEntry, parentID string, depth int) error {
		if depth >= MaxDepth && len(entries) > 0 {
			return fmt.Errorf("%w: nesting deeper than %d levels", ErrInvalidOutline, MaxDepth)
		}
		for i, e := range entries {
			title := strings.TrimSpace(e.Title)
			if title == "" {
				return fmt.Errorf("%w: entry %d under %q has no title", ErrInvalidOutline, i, parentID)
			}
			id := e.ID
			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}
			items = append(items, Item{
				ID:           id,
				ParentID:     parentID,
				Order:        i,
				Title:        title,
				Description:  e.Description,
				Status:       StatusPending,
				TimeSegments: []TimeRange{},
			})
			if err := walk(e.Children, id, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(o.Items, "", 0); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidOutline)
	}
	return items, nil
}
