// Package navigation holds the console menu and filters it per caller.
package navigation

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/calcutta/console/internal/access"
)

//go:embed default.yaml
var defaultMenu []byte

// Item is a menu entry. Permission uses the same strings as route guards,
// including the "admin" meta-permission.
type Item struct {
	Label      string `yaml:"label" json:"label"`
	Path       string `yaml:"path" json:"path"`
	Permission string `yaml:"permission" json:"-"`
	Children   []Item `yaml:"children,omitempty" json:"children,omitempty"`
}

// Menu is the ordered top-level menu.
type Menu []Item

// Load reads the menu from path, or the embedded default when path is empty.
func Load(path string) (Menu, error) {
	raw := defaultMenu
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read nav config: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML menu.
func Parse(raw []byte) (Menu, error) {
	var m Menu
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse nav config: %w", err)
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func validate(items []Item) error {
	for _, it := range items {
		if it.Label == "" || it.Path == "" {
			return fmt.Errorf("nav item %+v needs a label and a path", it)
		}
		if err := validate(it.Children); err != nil {
			return err
		}
	}
	return nil
}

// Visible returns the items perms can reach. A parent the caller cannot
// reach hides its children too.
func (m Menu) Visible(perms []string) Menu {
	return filter(m, perms)
}

func filter(items []Item, perms []string) []Item {
	out := []Item{}
	for _, it := range items {
		if it.Permission != "" && !access.Has(perms, it.Permission) {
			continue
		}
		it.Children = filter(it.Children, perms)
		if len(it.Children) == 0 {
			it.Children = nil
		}
		out = append(out, it)
	}
	return out
}
