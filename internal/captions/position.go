package captions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Preset is a named screen position.
type Preset string

const (
	PresetTop         Preset = "top"
	PresetCenter      Preset = "center"
	PresetBottom      Preset = "bottom"
	PresetTopLeft     Preset = "top-left"
	PresetTopRight    Preset = "top-right"
	PresetBottomLeft  Preset = "bottom-left"
	PresetBottomRight Preset = "bottom-right"
)

// presetCoordinates maps presets to percentage coordinates.
var presetCoordinates = map[Preset][2]float64{
	PresetTop:         {50, 15},
	PresetCenter:      {50, 50},
	PresetBottom:      {50, 85},
	PresetTopLeft:     {15, 15},
	PresetTopRight:    {85, 15},
	PresetBottomLeft:  {15, 85},
	PresetBottomRight: {85, 85},
}

// PositionKind tags which variant a Position holds.
type PositionKind string

const (
	PositionPreset      PositionKind = "preset"
	PositionCoordinates PositionKind = "coordinates"
)

// Position is either a named preset or explicit {x,y} percentages in [0,100].
// The zero value resolves to the center preset.
type Position struct {
	Kind   PositionKind
	Preset Preset
	X, Y   float64
}

// AtPreset returns a preset position.
func AtPreset(p Preset) Position {
	return Position{Kind: PositionPreset, Preset: p}
}

// At returns a coordinate position.
func At(x, y float64) Position {
	return Position{Kind: PositionCoordinates, X: x, Y: y}
}

// Resolve returns the percentage coordinates of the position.
func (p Position) Resolve() (x, y float64) {
	switch p.Kind {
	case PositionCoordinates:
		return p.X, p.Y
	case PositionPreset:
		if xy, ok := presetCoordinates[p.Preset]; ok {
			return xy[0], xy[1]
		}
	}
	xy := presetCoordinates[PresetCenter]
	return xy[0], xy[1]
}

// Validate checks the preset name or the coordinate range.
func (p Position) Validate() error {
	switch p.Kind {
	case "":
		return nil
	case PositionPreset:
		if _, ok := presetCoordinates[p.Preset]; !ok {
			return fmt.Errorf("unknown position preset %q", p.Preset)
		}
	case PositionCoordinates:
		if p.X < 0 || p.X > 100 || p.Y < 0 || p.Y > 100 {
			return fmt.Errorf("position (%g, %g) outside [0,100]", p.X, p.Y)
		}
	default:
		return fmt.Errorf("unknown position kind %q", p.Kind)
	}
	return nil
}

type coordinates struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// MarshalJSON writes a preset as a string and coordinates as {"x","y"}.
func (p Position) MarshalJSON() ([]byte, error) {
	if p.Kind == PositionCoordinates {
		return json.Marshal(coordinates{X: p.X, Y: p.Y})
	}
	preset := p.Preset
	if p.Kind == "" {
		preset = PresetCenter
	}
	return json.Marshal(string(preset))
}

// UnmarshalJSON accepts a preset string or an {"x","y"} object.
func (p *Position) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Position{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = AtPreset(Preset(s))
		return nil
	}
	var c coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	*p = At(c.X, c.Y)
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (p Position) MarshalYAML() (any, error) {
	if p.Kind == PositionCoordinates {
		return coordinates{X: p.X, Y: p.Y}, nil
	}
	if p.Kind == "" {
		return string(PresetCenter), nil
	}
	return string(p.Preset), nil
}

// UnmarshalYAML accepts a preset scalar or an x/y mapping.
func (p *Position) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = AtPreset(Preset(node.Value))
		return nil
	case yaml.MappingNode:
		var c coordinates
		if err := node.Decode(&c); err != nil {
			return fmt.Errorf("position: %w", err)
		}
		*p = At(c.X, c.Y)
		return nil
	}
	return fmt.Errorf("position: unsupported YAML node at line %d", node.Line)
}
