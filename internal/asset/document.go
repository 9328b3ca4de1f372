package asset

import (
	"encoding/json"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/puzzle"
)

// Document is the JSON-encoded asset payload this server's converter
// understands for asset_type "realm-v1" (spec.md §3 "Asset... opaque
// data"; the schema itself is this collaborator's own choice, since the
// spec treats the encoding as external). It names every platform, tile,
// piece and propagation rule of a realm plus the settings defaults merged
// in at init (spec.md §4.3 step 3).
type Document struct {
	Platforms        []PlatformDoc               `json:"platforms"`
	SpawnPoints      map[string]SpawnAreaDoc     `json:"spawn_points"`
	DefaultSpawn     SpawnAreaDoc                `json:"default_spawn"`
	Pieces           []PieceDoc                  `json:"pieces"`
	Rules            []puzzle.Rule               `json:"rules"`
	RadioGroups      []string                    `json:"radio_groups"`
	SettingsDefaults map[string]model.SettingValue `json:"settings_defaults"`
}

// PlatformDoc is one navigable tile grid.
type PlatformDoc struct {
	Width  uint32    `json:"width"`
	Length uint32    `json:"length"`
	Tiles  []TileDoc `json:"tiles"`
}

// TileDoc overrides one sparse tile's terrain (spec.md §3 "Ground"); tiles
// absent from this list default to walkable.
type TileDoc struct {
	X            uint32           `json:"x"`
	Y            uint32           `json:"y"`
	Kind         string           `json:"kind"` // "obstacle", "gated", "pieces"
	Gate         string           `json:"gate,omitempty"`
	Interactions []InteractionDoc `json:"interactions,omitempty"`
	Proximity    []int            `json:"proximity,omitempty"`
}

// InteractionDoc registers one interactable slot at a GroundPieces tile.
type InteractionDoc struct {
	Kind       string `json:"kind"` // "button", "switch", "radioButton", "realmSelector"
	Name       string `json:"name"`
	Piece      int    `json:"piece"`
	Animation  string `json:"animation"`
	DurationMS int64  `json:"duration_ms"`
}

// SpawnAreaDoc is a named rectangular spawn region.
type SpawnAreaDoc struct {
	Platform int    `json:"platform"`
	MinX     uint32 `json:"min_x"`
	MinY     uint32 `json:"min_y"`
	MaxX     uint32 `json:"max_x"`
	MaxY     uint32 `json:"max_y"`
}

// PieceDoc is one puzzle piece declaration: a variant tag plus its
// type-specific parameters (spec.md §3 "Puzzle piece... Variants include
// arithmetic, buffer, clock, comparator, counter, button, cycle button,
// switch, radio button..., proximity, realm selector, metronome, timer,
// holiday calendar, permutation, index/indexlist, logic gate, map sink,
// property sink, event sink, and multi-sink").
type PieceDoc struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}
