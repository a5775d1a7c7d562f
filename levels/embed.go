package levels

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jakecoffman/cp"
	"gopkg.in/yaml.v3"
)

//go:embed *.yaml
var LevelsFS embed.FS

// Vec is a point written as a two element sequence, e.g. [1.5, 3].
type Vec [2]float64

func (v Vec) V() cp.Vector {
	return cp.Vector{X: v[0], Y: v[1]}
}

// Level is a scenario: the navigation maps plus what to spawn on them.
type Level struct {
	Name      string     `yaml:"name"`
	Maps      []MapSpec  `yaml:"maps"`
	Spawns    []Spawn    `yaml:"spawns"`
	Obstacles []Obstacle `yaml:"obstacles,omitempty"`
	// Duration is how long a headless run lasts, in seconds.
	Duration float64 `yaml:"duration,omitempty"`
}

type MapSpec struct {
	ID uint32 `yaml:"id"`
	// CellSize is the resolution of the local router grid.
	CellSize float64      `yaml:"cell_size,omitempty"`
	Areas    []AreaSpec   `yaml:"areas"`
	Portals  []PortalSpec `yaml:"portals,omitempty"`
	Walls    []BoxSpec    `yaml:"walls,omitempty"`
}

type AreaSpec struct {
	ID         uint32  `yaml:"id"`
	Min        Vec     `yaml:"min"`
	Max        Vec     `yaml:"max"`
	Height     float64 `yaml:"height,omitempty"`
	SpeedLimit float64 `yaml:"speed_limit,omitempty"`
	Blocked    bool    `yaml:"blocked,omitempty"`
}

// PortalSpec joins two areas at a crossing point on their shared edge.
type PortalSpec struct {
	From  uint32 `yaml:"from"`
	To    uint32 `yaml:"to"`
	Point Vec    `yaml:"point"`
	// OneWay portals can only be crossed from From to To.
	OneWay bool `yaml:"one_way,omitempty"`
}

type BoxSpec struct {
	Min Vec `yaml:"min"`
	Max Vec `yaml:"max"`
}

func (b BoxSpec) BB() cp.BB {
	return cp.BB{
		L: min(b.Min[0], b.Max[0]), B: min(b.Min[1], b.Max[1]),
		R: max(b.Min[0], b.Max[0]), T: max(b.Min[1], b.Max[1]),
	}
}

// Spawn places one agent. Archetype names an entry of prefabs/agents.yaml.
type Spawn struct {
	Name      string    `yaml:"name"`
	Archetype string    `yaml:"archetype"`
	Position  Vec       `yaml:"position"`
	Map       uint32    `yaml:"map,omitempty"`
	Priority  int       `yaml:"priority,omitempty"`
	Goal      *GoalSpec `yaml:"goal,omitempty"`
	// Vehicle names a spawn this agent drives.
	Vehicle string `yaml:"vehicle,omitempty"`
}

// GoalSpec describes a navigation goal. Kind is one of point, points,
// consecutive, object, line_of_sight or avoid_threats.
type GoalSpec struct {
	Kind           string   `yaml:"kind"`
	Positions      []Vec    `yaml:"positions,omitempty"`
	Radius         float64  `yaml:"radius,omitempty"`
	Target         string   `yaml:"target,omitempty"`
	Threats        []string `yaml:"threats,omitempty"`
	Range          float64  `yaml:"range,omitempty"`
	ReplanDistance float64  `yaml:"replan_distance,omitempty"`
	SafeDistance   float64  `yaml:"safe_distance,omitempty"`
	Avoid          bool     `yaml:"avoid,omitempty"`
}

type Obstacle struct {
	Position Vec     `yaml:"position"`
	Radius   float64 `yaml:"radius"`
}

// Parse decodes a level document.
func Parse(data []byte) (*Level, error) {
	var lvl Level
	if err := yaml.Unmarshal(data, &lvl); err != nil {
		return nil, fmt.Errorf("unmarshal level: %w", err)
	}
	if len(lvl.Maps) == 0 {
		return nil, fmt.Errorf("level %q has no maps", lvl.Name)
	}
	return &lvl, nil
}

// LoadLevelFromFS loads an embedded level by file name.
func LoadLevelFromFS(name string) (*Level, error) {
	data, err := fs.ReadFile(LevelsFS, cleanLevelPath(name))
	if err != nil {
		return nil, fmt.Errorf("read level: %w", err)
	}
	return Parse(data)
}

// Load prefers a level file on disk and falls back to the embedded copy.
func Load(name string) (*Level, error) {
	if data, err := os.ReadFile(name); err == nil {
		return Parse(data)
	}
	return LoadLevelFromFS(name)
}

// Names lists the embedded levels.
func Names() []string {
	entries, err := fs.ReadDir(LevelsFS, ".")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func cleanLevelPath(name string) string {
	s := filepath.ToSlash(name)
	if after, ok := strings.CutPrefix(s, "levels/"); ok {
		s = after
	}
	if !strings.HasSuffix(s, ".yaml") {
		s += ".yaml"
	}
	return s
}
