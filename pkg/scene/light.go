package scene

import "github.com/fogleman/pt/pt"

// LightKind selects the light variant
type LightKind int

const (
	// PointLight radiates from a position
	PointLight LightKind = iota
	// AmbientLight contributes a constant term with no direction
	AmbientLight
)

// Light is a tagged light variant. Position is meaningful for point lights
// only.
type Light struct {
	Kind     LightKind
	Position pt.Vector
	Color    pt.Vector
}

// NewPointLight builds a point light
func NewPointLight(position, color pt.Vector) Light {
	return Light{Kind: PointLight, Position: position, Color: color}
}

// NewAmbientLight builds an ambient light
func NewAmbientLight(color pt.Vector) Light {
	return Light{Kind: AmbientLight, Color: color}
}
