package catalog

import (
	"context"
	"strings"
)

// Vehicle describes one entry in the AOE Motors lineup.
type Vehicle struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Powertrain string   `json:"powertrain"`
	Features   []string `json:"features"`
}

// Source resolves vehicle details by display name.
type Source interface {
	Vehicle(ctx context.Context, name string) (*Vehicle, bool, error)
}

// lineup is the fixed AOE Motors catalog. Unknown names degrade to a nil
// vehicle rather than an error so intake never fails on catalog gaps.
var lineup = map[string]Vehicle{
	"aoe apex": {
		Name:       "AOE Apex",
		Type:       "Sedan",
		Powertrain: "Gasoline",
		Features:   []string{"Advanced driver assistance", "Premium leather interior", "Adaptive cruise control"},
	},
	"aoe thunder": {
		Name:       "AOE Thunder",
		Type:       "SUV",
		Powertrain: "Gasoline",
		Features:   []string{"Three-row seating", "Tow package", "Panoramic sunroof"},
	},
	"aoe volt": {
		Name:       "AOE Volt",
		Type:       "Sedan",
		Powertrain: "Electric",
		Features:   []string{"300-mile range", "Fast charging", "One-pedal driving"},
	},
	"aoe aero": {
		Name:       "AOE Aero",
		Type:       "Crossover",
		Powertrain: "Hybrid",
		Features:   []string{"All-wheel drive", "Regenerative braking", "Hands-free liftgate"},
	},
	"aoe stellar": {
		Name:       "AOE Stellar",
		Type:       "Coupe",
		Powertrain: "Gasoline",
		Features:   []string{"Sport-tuned suspension", "Launch control", "Carbon fiber trim"},
	},
}

// Static is the in-process catalog backed by the fixed lineup.
type Static struct{}

// NewStatic returns the fixed AOE lineup catalog.
func NewStatic() *Static {
	return &Static{}
}

// Vehicle resolves a vehicle by name, case-insensitively. The second return
// reports whether the name is in the lineup.
func (s *Static) Vehicle(ctx context.Context, name string) (*Vehicle, bool, error) {
	v, ok := lineup[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false, nil
	}
	out := v
	return &out, true, nil
}

// Names lists the lineup's display names. Ordering is unspecified.
func (s *Static) Names() []string {
	names := make([]string, 0, len(lineup))
	for _, v := range lineup {
		names = append(names, v.Name)
	}
	return names
}
