package game

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the seed data of the in-memory game world.
type Catalog struct {
	User          User                `yaml:"user"`
	Skills        []Skill             `yaml:"skills"`
	Agents        []Agent             `yaml:"agents"`
	Templates     []AgentTemplate     `yaml:"templates"`
	Games         []Game              `yaml:"games"`
	Market        []MarketData        `yaml:"market"`
	Leaderboard   []LeaderboardEntry  `yaml:"leaderboard"`
	Stats         GameStats           `yaml:"stats"`
	Rivals        []SessionRival      `yaml:"rivals"`
	Network       []NetworkAgent      `yaml:"network"`
	Conversations map[string][]string `yaml:"conversations"`
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("catalog.yaml: %w", err)
	}
	if len(c.Templates) == 0 {
		return c, fmt.Errorf("catalog.yaml: no agent templates")
	}
	for _, t := range c.Templates {
		if _, err := ParseAgentType(string(t.Type)); err != nil {
			return c, fmt.Errorf("catalog.yaml: template %q: %w", t.Name, err)
		}
	}
	return c, nil
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, or the embedded one when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(raw)
}
