package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"taskbot/internal/models"
)

// Responsible party ids of the default table
const (
	DefaultResponsibleA int64 = 270
	DefaultResponsibleB int64 = 12
)

// Catalog is the ordered, immutable category table
type Catalog struct {
	categories []models.Category
	byKey      map[string]models.Category
}

type file struct {
	Categories []models.Category `yaml:"categories"`
}

// Default returns the built-in category table
func Default() *Catalog {
	c, _ := New([]models.Category{
		{Key: "q1", Title: "Вопрос 1", ResponsibleID: DefaultResponsibleA},
		{Key: "q2", Title: "Вопрос 2", ResponsibleID: DefaultResponsibleB},
		{Key: "q3", Title: "Вопрос 3", ResponsibleID: DefaultResponsibleA},
		{Key: "other", Title: "Другое", ResponsibleID: DefaultResponsibleB},
	})
	return c
}

// New validates categories and builds a catalog
func New(categories []models.Category) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("category list is empty")
	}

	c := &Catalog{byKey: make(map[string]models.Category, len(categories))}
	for i, cat := range categories {
		cat.Key = strings.TrimSpace(cat.Key)
		cat.Title = strings.TrimSpace(cat.Title)
		switch {
		case cat.Key == "":
			return nil, fmt.Errorf("category #%d: key is required", i+1)
		case cat.Title == "":
			return nil, fmt.Errorf("category %q: title is required", cat.Key)
		case cat.ResponsibleID <= 0:
			return nil, fmt.Errorf("category %q: responsible_id must be positive", cat.Key)
		}
		if _, dup := c.byKey[cat.Key]; dup {
			return nil, fmt.Errorf("duplicate category key %q", cat.Key)
		}
		c.byKey[cat.Key] = cat
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

// Load reads a YAML category table. An empty path yields the default table.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories file: %w", err)
	}
	return New(f.Categories)
}

// All returns categories in menu order
func (c *Catalog) All() []models.Category {
	return append([]models.Category(nil), c.categories...)
}

// Lookup finds a category by its key
func (c *Catalog) Lookup(key string) (models.Category, bool) {
	cat, ok := c.byKey[key]
	return cat, ok
}

// ByTitle finds a category by its exact title, ignoring surrounding spaces and case
func (c *Catalog) ByTitle(title string) (models.Category, bool) {
	title = strings.TrimSpace(title)
	for _, cat := range c.categories {
		if strings.EqualFold(cat.Title, title) {
			return cat, true
		}
	}
	return models.Category{}, false
}

// Responsible returns the responsible party id for a category key
func (c *Catalog) Responsible(key string) (int64, bool) {
	cat, ok := c.byKey[key]
	if !ok {
		return 0, false
	}
	return cat.ResponsibleID, true
}
