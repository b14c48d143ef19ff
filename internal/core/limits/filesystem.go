package limits

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

// FileSystemSource loads campaign/group limits from *.yaml files in a
// directory. Files are loaded once at startup and cached in memory — limit
// changes require a restart. Multiple files merge; a campaign or group id
// appearing in two files is a configuration error.
type FileSystemSource struct {
	dir       string
	loc       *time.Location
	campaigns map[string]campaignLimits
	groups    map[string]groupLimits
}

type campaignLimits struct {
	Budget decimal.Decimal
}

type groupLimits struct {
	Budget    decimal.Decimal
	hasBudget bool
	Caps      map[string]int64 // keyed by control type name
}

// rawFile is the on-disk YAML shape.
type rawFile struct {
	Timezone  string                  `yaml:"timezone"`
	Campaigns map[string]rawCampaign  `yaml:"campaigns"`
	Groups    map[string]rawGroup     `yaml:"groups"`
}

type rawCampaign struct {
	Budget string `yaml:"budget"`
}

type rawGroup struct {
	Budget string           `yaml:"budget"`
	Caps   map[string]int64 `yaml:"caps"`
}

// NewFileSystemSource creates a source and eagerly loads all limit files from
// dir. Returns an error if any file is malformed or declares a duplicate id.
func NewFileSystemSource(dir string) (*FileSystemSource, error) {
	src := &FileSystemSource{
		dir:       dir,
		loc:       time.UTC,
		campaigns: make(map[string]campaignLimits),
		groups:    make(map[string]groupLimits),
	}
	if err := src.load(); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *FileSystemSource) load() error {
	info, err := os.Stat(s.dir)
	if os.IsNotExist(err) {
		return nil // no limits directory — valid (everything unlimited)
	}
	if err != nil {
		return fmt.Errorf("limits dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("limits path %q is not a directory", s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading limits dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading limits file %s: %w", path, err)
		}

		var raw rawFile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing limits file %s: %w", path, err)
		}

		if raw.Timezone != "" {
			loc, err := time.LoadLocation(raw.Timezone)
			if err != nil {
				return fmt.Errorf("limits file %s: unknown timezone %q", path, raw.Timezone)
			}
			s.loc = loc
		}

		for id, c := range raw.Campaigns {
			if _, exists := s.campaigns[id]; exists {
				return fmt.Errorf("campaign %q: duplicate limit entry (check multiple YAML files)", id)
			}
			budget, err := parseBudget(c.Budget)
			if err != nil {
				return fmt.Errorf("campaign %q: %w", id, err)
			}
			s.campaigns[id] = campaignLimits{Budget: budget}
		}

		for id, g := range raw.Groups {
			if _, exists := s.groups[id]; exists {
				return fmt.Errorf("group %q: duplicate limit entry (check multiple YAML files)", id)
			}
			gl := groupLimits{Caps: make(map[string]int64)}
			if g.Budget != "" {
				budget, err := parseBudget(g.Budget)
				if err != nil {
					return fmt.Errorf("group %q: %w", id, err)
				}
				gl.Budget = budget
				gl.hasBudget = true
			}
			for name, cap := range g.Caps {
				if _, err := counter.ParseControlType(name); err != nil {
					return fmt.Errorf("group %q: %w", id, err)
				}
				if cap < 0 {
					return fmt.Errorf("group %q: cap %q must not be negative", id, name)
				}
				gl.Caps[strings.ToLower(name)] = cap
			}
			s.groups[id] = gl
		}
	}
	return nil
}

func parseBudget(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("budget must not be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed budget %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("budget must not be negative, got %s", d)
	}
	return d, nil
}

func (s *FileSystemSource) CampaignBudget(id string) (decimal.Decimal, bool) {
	c, ok := s.campaigns[id]
	if !ok {
		return decimal.Zero, false
	}
	return c.Budget, true
}

func (s *FileSystemSource) GroupBudget(id string) (decimal.Decimal, bool) {
	g, ok := s.groups[id]
	if !ok || !g.hasBudget {
		return decimal.Zero, false
	}
	return g.Budget, true
}

func (s *FileSystemSource) GroupCap(id string, control counter.ControlType) (int64, bool) {
	g, ok := s.groups[id]
	if !ok {
		return 0, false
	}
	cap, ok := g.Caps[control.Name]
	return cap, ok
}

func (s *FileSystemSource) Location() *time.Location {
	return s.loc
}

// Count returns how many campaign and group limit entries are loaded.
// Used for startup logging and the require-limits check.
func (s *FileSystemSource) Count() int {
	return len(s.campaigns) + len(s.groups)
}
