package realm

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// LaunchKind discriminates whether a controller is starting a brand-new
// realm row or resuming a persisted one (spec.md §4.3 "Launch::Existing").
type LaunchKind int

const (
	LaunchNew LaunchKind = iota
	LaunchExisting
)

// Launch parameterizes controller initialization.
type Launch struct {
	Kind  LaunchKind
	DBID  int64 // LaunchExisting
	Owner string
	Asset string
}

// AssetResolver resolves an asset hash to its content, reporting the
// closed set of resolution failures (spec.md §4.3 step 1). Implemented by
// internal/asset; kept as an interface here so the controller never
// depends on how assets are fetched or cached.
type AssetResolver interface {
	Resolve(hash string) (model.Asset, error)
	// SupportedCapabilities lists every capability tag this server
	// understands; any asset-declared tag outside this set fails
	// initialization with MissingCapabilities.
	SupportedCapabilities() map[string]bool
}

// ConvertedRealm is what asset conversion produces: everything the
// controller needs to build a puzzle.Graph and navigation.Manifold
// (spec.md §4.3 step 3 "Convert the asset into (pieces, rules, manifold,
// player_effects, settings_defaults)").
type ConvertedRealm struct {
	Pieces           []puzzle.Piece
	Rules            []puzzle.Rule
	RadioGroups      map[string]*puzzle.RadioSharedState
	Manifold         *navigation.Manifold
	PlayerEffects    map[model.Principal]string
	SettingsDefaults map[string]model.SettingValue
}

// AssetConverter turns a resolved asset into its runtime components. The
// puzzle/navigation packages only know about pieces, rules, and tiles; only
// the converter (grounded on the asset format, spec.md §6) knows how to
// build them from asset bytes.
type AssetConverter interface {
	Convert(asset model.Asset) (ConvertedRealm, error)
}

// MissingCapabilitiesError reports that an asset declares capability tags
// this server does not support.
type MissingCapabilitiesError struct{ Capabilities []string }

func (e *MissingCapabilitiesError) Error() string {
	return fmt.Sprintf("realm: asset requires unsupported capabilities %v", e.Capabilities)
}

// ResolutionFailedError reports that the launch target asset could not be
// resolved at all (spec.md §4.3 step 1 "on Unknown return ResolvedFailed").
type ResolutionFailedError struct{ Cause error }

func (e *ResolutionFailedError) Error() string { return fmt.Sprintf("realm: resolution failed: %v", e.Cause) }
func (e *ResolutionFailedError) Unwrap() error  { return e.Cause }

// New runs the initialization protocol (spec.md §4.3 steps 1-4) and returns
// a live controller, or an error from resolution/conversion. store supplies
// persistence; a fresh LaunchNew realm is inserted with a random seed
// before conversion, an existing one is loaded and its puzzle state
// rehydrated.
func New(launch Launch, resolver AssetResolver, converter AssetConverter, store Store, now time.Time) (*Controller, error) {
	var row model.Realm
	switch launch.Kind {
	case LaunchExisting:
		loaded, err := store.LoadRealm(launch.DBID)
		if err != nil {
			return nil, fmt.Errorf("realm: loading realm %d: %w", launch.DBID, err)
		}
		row = loaded
	case LaunchNew:
		row = model.Realm{
			Owner: launch.Owner,
			Asset: launch.Asset,
			Seed:  rand.Int32(),
			AdminACL: model.AccessList[model.SimpleAccess]{
				Default: model.SimpleAccessDeny,
				Rules: []model.Rule[model.SimpleAccess]{
					{Subject: model.SubjectFor(model.Local(launch.Owner)), Verdict: model.SimpleAccessAllow},
				},
			},
		}
		id, err := store.InsertRealm(row)
		if err != nil {
			return nil, fmt.Errorf("realm: inserting new realm: %w", err)
		}
		row.DBID = id
	}

	asset, err := resolver.Resolve(row.Asset)
	if err != nil {
		if ae, ok := err.(*model.AssetError); ok {
			switch ae.Kind {
			case model.AssetErrorUnknownKind:
				return nil, &ResolutionFailedError{Cause: err}
			default:
				return nil, fmt.Errorf("realm: internal error resolving asset: %w", err)
			}
		}
		return nil, fmt.Errorf("realm: resolving asset: %w", err)
	}

	supported := resolver.SupportedCapabilities()
	var missing []string
	for _, cap := range asset.Capabilities {
		if !supported[cap] {
			missing = append(missing, cap)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingCapabilitiesError{Capabilities: missing}
	}

	converted, err := converter.Convert(asset)
	if err != nil {
		return nil, fmt.Errorf("realm: converting asset: %w", err)
	}

	row.Settings = mergeSettings(row.Settings, converted.SettingsDefaults)

	graph := puzzle.NewGraph(row.Owner, converted.Pieces, converted.Rules, converted.RadioGroups)
	if row.Initialized && len(row.PuzzleState) > 0 {
		if err := graph.LoadState(row.PuzzleState); err != nil {
			slog.Warn("realm: puzzle state length mismatch, falling back to blank", "realm", row.DBID, "error", err)
			if err := graph.Reset(now, row.Settings); err != nil {
				return nil, fmt.Errorf("realm: resetting after rehydrate failure: %w", err)
			}
		}
	} else {
		if err := graph.Reset(now, row.Settings); err != nil {
			return nil, fmt.Errorf("realm: initial reset: %w", err)
		}
		row.Initialized = true
	}

	return &Controller{
		row:      row,
		graph:    graph,
		manifold: converted.Manifold,
		effects:  converted.PlayerEffects,
		store:    store,
		players:  map[model.Principal]*PlayerSession{},
	}, nil
}

// mergeSettings merges persisted settings with asset-declared defaults:
// keys whose stored type does not match the declared type are discarded,
// missing keys are filled from defaults (spec.md §4.3 step 3).
func mergeSettings(stored, defaults map[string]model.SettingValue) map[string]model.SettingValue {
	out := make(map[string]model.SettingValue, len(defaults))
	for name, def := range defaults {
		if have, ok := stored[name]; ok && have.Kind == def.Kind {
			out[name] = have
		} else {
			out[name] = def
		}
	}
	return out
}
