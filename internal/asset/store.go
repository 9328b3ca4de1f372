// Package asset implements the content-addressed asset store and the
// asset-to-realm conversion pipeline (spec.md §3 "Asset (consumed; defined
// by external collaborator)"). Spec.md explicitly treats the asset
// bytecode/mesh pipeline as out of scope and names only the contract the
// core consumes (realm.AssetResolver / realm.AssetConverter); this package
// is this server's own implementation of that external collaborator, not
// part of the core itself. Grounded on the teacher's internal/html.Cache
// (internal/html/cache.go) for the on-disk, path-traversal-guarded,
// RWMutex-protected load-and-cache shape, generalized from HTML templates
// keyed by relative path to asset bytes keyed by content hash.
package asset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// Store is a local, content-addressed asset repository: one file per asset,
// named by its hash, under a root directory (spec.md §6 "Asset store:
// content-addressed; write is idempotent (hash collision => same bytes)").
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]model.Asset

	capabilities map[string]bool
}

// record is the on-disk encoding of one asset: the Document plus the
// envelope fields spec.md's Asset carries alongside its opaque data.
type record struct {
	Kind         string    `json:"kind"`
	Author       string    `json:"author"`
	Capabilities []string  `json:"capabilities"`
	Dependencies []string  `json:"dependencies"`
	Licence      string    `json:"licence"`
	Tags         []string  `json:"tags"`
	Created      time.Time `json:"created"`
	Data         Document  `json:"data"`
}

// NewStore opens (creating if absent) a content-addressed store rooted at
// dir, supporting the given set of capability tags (spec.md §4.3 step 1
// "if any tag is unknown to this server, return MissingCapabilities").
func NewStore(dir string, capabilities map[string]bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("asset: creating store dir %s: %w", dir, err)
	}
	return &Store{
		dir:          dir,
		cache:        make(map[string]model.Asset),
		capabilities: capabilities,
	}, nil
}

// SupportedCapabilities implements realm.AssetResolver.
func (s *Store) SupportedCapabilities() map[string]bool { return s.capabilities }

// Resolve implements realm.AssetResolver: loads the asset named by hash,
// failing with model.AssetError when it is absent, unreadable, or
// malformed.
func (s *Store) Resolve(hash string) (model.Asset, error) {
	s.mu.RLock()
	cached, ok := s.cache[hash]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, err := s.pathFor(hash)
	if err != nil {
		return model.Asset{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Asset{}, &model.AssetError{Kind: model.AssetErrorMissing, Missing: []string{hash}}
		}
		return model.Asset{}, &model.AssetError{Kind: model.AssetErrorInternalError, Message: err.Error()}
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Asset{}, &model.AssetError{Kind: model.AssetErrorDecodeFailure, Message: err.Error()}
	}
	docBytes, err := json.Marshal(rec.Data)
	if err != nil {
		return model.Asset{}, &model.AssetError{Kind: model.AssetErrorInternalError, Message: err.Error()}
	}

	a := model.Asset{
		Hash:         hash,
		Kind:         rec.Kind,
		Author:       rec.Author,
		Capabilities: rec.Capabilities,
		Dependencies: rec.Dependencies,
		Data:         docBytes,
		Licence:      rec.Licence,
		Tags:         rec.Tags,
		Created:      rec.Created,
	}

	s.mu.Lock()
	s.cache[hash] = a
	s.mu.Unlock()
	return a, nil
}

// Put writes a new asset, computing its principal hash from the canonical
// (JSON) encoding of kind+author+capabilities+dependencies+licence+tags+data
// (spec.md §6 "Asset identifier. Lowercase hex of sha3_512 of the canonical
// asset encoding"). Write is idempotent: writing the same logical content
// twice returns the same hash and does not error.
func (s *Store) Put(kind, author string, capabilities, dependencies []string, licence string, tags []string, data Document, created time.Time) (string, error) {
	rec := record{
		Kind:         kind,
		Author:       author,
		Capabilities: capabilities,
		Dependencies: dependencies,
		Licence:      licence,
		Tags:         tags,
		Created:      created,
		Data:         data,
	}
	canonical, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("asset: encoding asset: %w", err)
	}
	hashed := rec
	hashed.Created = time.Time{}
	hashInput, err := json.Marshal(hashed)
	if err != nil {
		return "", fmt.Errorf("asset: encoding asset: %w", err)
	}
	hash := model.AssetHash(hashInput)

	path, err := s.pathFor(hash)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return hash, nil // already present; idempotent write
	}
	if err := os.WriteFile(path, canonical, 0o644); err != nil {
		return "", fmt.Errorf("asset: writing %s: %w", hash, err)
	}
	return hash, nil
}

// pathFor maps a hash to its on-disk path, rejecting anything that is not a
// plain hex digest (mirrors the teacher's path-traversal guard in
// internal/html.Cache.Get, generalized from relative template paths to
// asset hashes since neither should ever contain a path separator).
func (s *Store) pathFor(hash string) (string, error) {
	if hash == "" || filepath.Base(hash) != hash {
		return "", &model.AssetError{Kind: model.AssetErrorDecodeFailure, Message: "invalid asset hash"}
	}
	return filepath.Join(s.dir, hash+".json"), nil
}
