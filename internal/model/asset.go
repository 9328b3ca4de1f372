package model

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// Asset is the resolved, content-addressed blob the asset pipeline hands to
// the core (spec.md §3 "consumed; defined by external collaborator"). The
// core never interprets data itself beyond what the puzzle/navigation
// conversion (internal/puzzle, internal/navigation) does with it.
type Asset struct {
	Hash         string // lowercase hex sha3-512 of the canonical asset encoding (see AssetHash)
	Kind         string // asset_type
	Author       string
	Capabilities []string // required capability tags
	Dependencies []string // child asset hashes
	Data         []byte   // opaque payload, interpreted by the conversion layer
	Licence      string
	Tags         []string
	Created      time.Time
}

// AssetHash computes the principal_hash of canonical asset bytes: lowercase
// hex of SHA3-512 (spec.md §3, §6 "Asset identifier").
func AssetHash(canonicalEncoding []byte) string {
	sum := sha3.Sum512(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}

// AssetErrorKind is the closed set of asset resolution failures
// (spec.md §7).
type AssetErrorKind int

const (
	AssetErrorUnknownKind AssetErrorKind = iota
	AssetErrorDecodeFailure
	AssetErrorInvalid
	AssetErrorInternalError
	AssetErrorMissing // recoverable: caller can fetch Missing children and retry
	AssetErrorPermissionError
)

// AssetError reports why asset resolution failed.
type AssetError struct {
	Kind    AssetErrorKind
	Missing []string // child hashes to fetch, valid when Kind == AssetErrorMissing
	Message string
}

func (e *AssetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case AssetErrorUnknownKind:
		return "unknown asset kind"
	case AssetErrorDecodeFailure:
		return "asset decode failure"
	case AssetErrorInvalid:
		return "invalid asset"
	case AssetErrorMissing:
		return "asset has unresolved dependencies"
	case AssetErrorPermissionError:
		return "permission denied resolving asset"
	default:
		return "internal asset error"
	}
}

// Recoverable reports whether the caller can fetch e.Missing and retry.
func (e *AssetError) Recoverable() bool { return e.Kind == AssetErrorMissing }
