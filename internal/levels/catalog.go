// Package levels holds the static catalog of challenge levels.
package levels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/ashureev/voicelab/internal/domain"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownLevel is returned when a level id is not in the catalog.
	ErrUnknownLevel = errors.New("unknown level")
	// ErrEmptyCatalog is returned when an override file defines no levels.
	ErrEmptyCatalog = errors.New("catalog has no levels")
)

const defaultDescription = "Get the agent to authorize a bank transfer."

var defaultLevels = []domain.Level{
	{ID: 0, Title: "Level 0: Super Duper Hard Mode", Description: defaultDescription, Image: "/images/level0.svg"},
	{ID: 1, Title: "Level 1: Secret Password", Description: defaultDescription, Image: "/images/level1.svg"},
	{ID: 2, Title: "Level 2: Identity Verification", Description: defaultDescription, Image: "/images/level2.svg"},
	{ID: 3, Title: "Level 3: Secure Method", Description: defaultDescription, Image: "/images/level3.svg"},
	{ID: 4, Title: "Level 4: Familiar But Different", Description: defaultDescription, Image: "/images/level4.svg"},
	{ID: 5, Title: "Level 5: The Finale", Description: defaultDescription, Image: "/images/level4.svg"},
}

// Catalog is an immutable, id-ordered set of levels.
type Catalog struct {
	levels []domain.Level
}

// catalogFile is the YAML shape accepted by Load.
type catalogFile struct {
	Levels []domain.Level `yaml:"levels"`
}

// Default returns the built-in catalog of levels 0 through 5.
func Default() *Catalog {
	return &Catalog{levels: slices.Clone(defaultLevels)}
}

// Load reads a YAML catalog from path. An empty path yields the default catalog.
func Load(_ context.Context, path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read levels file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Ids must be unique, contiguous from 0 and
// no greater than domain.MaxLevelID.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse levels file: %w", err)
	}
	if len(file.Levels) == 0 {
		return nil, ErrEmptyCatalog
	}

	levels := slices.Clone(file.Levels)
	slices.SortFunc(levels, func(a, b domain.Level) int { return int(a.ID) - int(b.ID) })
	for i, lvl := range levels {
		if !lvl.ID.Valid() {
			return nil, fmt.Errorf("level %d: id out of range 0..%d", lvl.ID, domain.MaxLevelID)
		}
		if int(lvl.ID) != i {
			return nil, fmt.Errorf("level ids must be contiguous from 0: missing or duplicate id near %d", i)
		}
		if lvl.Title == "" {
			return nil, fmt.Errorf("level %d: title is required", lvl.ID)
		}
	}
	return &Catalog{levels: levels}, nil
}

// All returns a copy of the levels in id order.
func (c *Catalog) All() []domain.Level {
	return slices.Clone(c.levels)
}

// Get returns the level with the given id.
func (c *Catalog) Get(id domain.LevelID) (domain.Level, error) {
	if id < 0 || int(id) >= len(c.levels) {
		return domain.Level{}, fmt.Errorf("%w: %d", ErrUnknownLevel, id)
	}
	return c.levels[id], nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id domain.LevelID) bool {
	return id >= 0 && int(id) < len(c.levels)
}

// Last returns the highest level id.
func (c *Catalog) Last() domain.LevelID {
	return domain.LevelID(len(c.levels) - 1)
}

// Len returns the number of levels.
func (c *Catalog) Len() int {
	return len(c.levels)
}
