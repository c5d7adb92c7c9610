package dialog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var builtinRoutes []byte

// Routes holds one static table per transport: normalized route number to
// the two direction descriptions in stored order.
type Routes struct {
	Bus        map[string][2]string
	Trolleybus map[string][2]string
}

// Lookup finds directions for a normalized route number on transport t.
func (r Routes) Lookup(t Transport, routeNum string) ([2]string, bool) {
	var table map[string][2]string
	switch t {
	case TransportBus:
		table = r.Bus
	case TransportTrolleybus:
		table = r.Trolleybus
	}
	dirs, ok := table[routeNum]
	return dirs, ok
}

type routesFile struct {
	Bus        map[string][]string `yaml:"bus"`
	Trolleybus map[string][]string `yaml:"trolleybus"`
}

// DefaultRoutes returns the tables compiled into the binary.
func DefaultRoutes() (Routes, error) {
	return ParseRoutes(builtinRoutes)
}

// LoadRoutes reads tables from a YAML file. An empty path yields the built-in tables.
func LoadRoutes(path string) (Routes, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRoutes()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Routes{}, fmt.Errorf("read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes YAML tables. Keys are normalized the same way user
// input is, so lookups match regardless of how the file spells them.
func ParseRoutes(data []byte) (Routes, error) {
	var raw routesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Routes{}, fmt.Errorf("parse routes: %w", err)
	}
	bus, err := buildTable("bus", raw.Bus)
	if err != nil {
		return Routes{}, err
	}
	trolley, err := buildTable("trolleybus", raw.Trolleybus)
	if err != nil {
		return Routes{}, err
	}
	return Routes{Bus: bus, Trolleybus: trolley}, nil
}

func buildTable(name string, raw map[string][]string) (map[string][2]string, error) {
	table := make(map[string][2]string, len(raw))
	for key, dirs := range raw {
		if len(dirs) != 2 {
			return nil, fmt.Errorf("routes: %s route %q must list exactly 2 directions, got %d", name, key, len(dirs))
		}
		norm := NormalizeRouteNum(key)
		if _, dup := table[norm]; dup {
			return nil, fmt.Errorf("routes: %s route %q duplicates another key after normalization", name, key)
		}
		table[norm] = [2]string{dirs[0], dirs[1]}
	}
	return table, nil
}

// NormalizeRouteNum trims and lowercases s and replaces the Latin "a" with
// the Cyrillic "а" passengers mean when typing suffixed route numbers.
func NormalizeRouteNum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "a", "а")
}
