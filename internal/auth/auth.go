// Package auth implements Spadina's three login surfaces (spec.md §6): a
// password backend, a public-key nonce/signature backend, and the HS256
// JWT issuer both share. Grounded on the teacher's "pre-generate key
// material once at startup, hand it to a Handler" posture
// (internal/login/server.go pre-generating RSA pairs, internal/crypto for
// the legacy cipher); this spec's federation/client tokens have no legacy
// client to satisfy, so the teacher's RSA/session-key exchange is replaced
// outright by golang-jwt/jwt/v5 HS256 tokens and golang.org/x/crypto/bcrypt
// password hashes rather than the teacher's SHA-1 scheme.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/udisondev/la2go/internal/db"
)

// Scheme is the authentication method the server advertises at
// GET /api/auth/method (spec.md §6 "AuthScheme ∈ {Password, Kerberos,
// OpenIdConnect}"). Only Password and PublicKey (this repo's name for the
// nonce/signature flow spec.md §6 describes under /api/client/nonce and
// /api/client/key) are implemented; Kerberos/OpenIdConnect are named by
// spec.md's closed enum but have no backend here. PublicKey has no member of
// its own in this enum: GET /api/auth/method reports it as SchemeKerberos.
type Scheme string

const (
	SchemePassword      Scheme = "Password"
	SchemeKerberos      Scheme = "Kerberos"
	SchemeOpenIDConnect Scheme = "OpenIdConnect"
)

// PlayerStore is the persistence contract auth reads accounts and public
// keys through; *db.PlayerRepository implements it.
type PlayerStore interface {
	GetPlayer(name string) (*db.Player, error)
	GetOrCreatePlayer(name, passwordHash string) (*db.Player, error)
	UpdateLastLogin(name string, when time.Time) error
	PublicKey(player, keyName string) ([]byte, error)
}

// TokenIssuer mints and verifies the HS256 JWTs backing every login
// surface (spec.md §6 "token string (JWT, HS256, {exp, name}, 1h)" for
// password login, the client nonce, and the client key-exchange token).
// The secret is generated once at startup and held for the process
// lifetime — restarting invalidates all outstanding tokens, which is
// acceptable since every token is short-lived (<=1h).
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer builds an issuer over a process-lifetime secret.
func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{secret: secret}
}

// claims is the shared JWT payload shape (spec.md §6 "{exp, name}");
// Purpose distinguishes a session token from a nonce so one can't be
// replayed as the other.
type claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

const (
	purposeSession = "session"
	purposeNonce   = "nonce"
)

// IssueSessionToken mints the 1-hour bearer token returned by
// POST /api/auth/password and POST /api/client/key.
func (t *TokenIssuer) IssueSessionToken(name string) (string, error) {
	return t.sign(name, purposeSession, time.Hour)
}

// IssueNonce mints the 30-second nonce returned by POST /api/client/nonce.
func (t *TokenIssuer) IssueNonce(name string) (string, error) {
	return t.sign(name, purposeNonce, 30*time.Second)
}

func (t *TokenIssuer) sign(name, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:    name,
		Purpose: purpose,
	})
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// VerifySession validates a session bearer token and returns the principal
// name it was issued for.
func (t *TokenIssuer) VerifySession(token string) (string, error) {
	return t.verify(token, purposeSession)
}

// VerifyNonce validates a nonce token, returning the principal name it was
// issued for.
func (t *TokenIssuer) VerifyNonce(token string) (string, error) {
	return t.verify(token, purposeNonce)
}

func (t *TokenIssuer) verify(token, wantPurpose string) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parsing token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("auth: token invalid")
	}
	if c.Purpose != wantPurpose {
		return "", fmt.Errorf("auth: token purpose %q, want %q", c.Purpose, wantPurpose)
	}
	return c.Name, nil
}

// PasswordBackend authenticates POST /api/auth/password (spec.md §6
// "{username, password} -> on success, token"). Grounded on the teacher's
// GetOrCreateAccount shape for self-registration, bcrypt per SPEC_FULL.md
// §11.4 replacing the teacher's legacy SHA-1 scheme, which this spec has
// no client compatibility reason to carry.
type PasswordBackend struct {
	players      PlayerStore
	autoRegister bool
}

// NewPasswordBackend builds a backend over the player store. If
// autoRegister is true, an unknown username is created on first successful
// password submission (spec.md leaves self-registration policy to the
// deployment; the teacher's AutoCreateAccounts flag is the precedent).
func NewPasswordBackend(players PlayerStore, autoRegister bool) *PasswordBackend {
	return &PasswordBackend{players: players, autoRegister: autoRegister}
}

// ErrInvalidCredentials is returned for any authentication failure,
// deliberately without distinguishing "unknown user" from "wrong
// password" to avoid a username oracle.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Authenticate verifies a username/password pair, creating the account on
// first use if autoRegister is set, and returns the canonical principal
// name on success.
func (b *PasswordBackend) Authenticate(username, password string) (string, error) {
	existing, err := b.players.GetPlayer(username)
	if err != nil {
		return "", fmt.Errorf("auth: looking up player %q: %w", username, err)
	}
	if existing == nil {
		if !b.autoRegister {
			return "", ErrInvalidCredentials
		}
		hash, err := HashPassword(password)
		if err != nil {
			return "", fmt.Errorf("auth: hashing password for new player %q: %w", username, err)
		}
		created, err := b.players.GetOrCreatePlayer(username, hash)
		if err != nil {
			return "", fmt.Errorf("auth: creating player %q: %w", username, err)
		}
		return created.Name, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	_ = b.players.UpdateLastLogin(existing.Name, time.Now())
	return existing.Name, nil
}

// HashPassword produces a bcrypt hash suitable for storage in
// players.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}

// KeyBackend authenticates the nonce/signature flow (spec.md §6
// "POST /api/client/key body {name, nonce, signature} -> on valid nonce +
// matching stored public key (verified with SHA-256), 1h token").
type KeyBackend struct {
	players PlayerStore
	tokens  *TokenIssuer
}

func NewKeyBackend(players PlayerStore, tokens *TokenIssuer) *KeyBackend {
	return &KeyBackend{players: players, tokens: tokens}
}

// VerifySignature checks that signature is a valid ECDSA-P256/SHA-256
// signature over nonce, made with the named player's stored public key
// (spec.md §4.8/§6; the original protocol's PlayerIdentifier-signed-nonce
// flow, re-expressed with a standard ecdsa+SHA-256 keypair since spec.md
// leaves the exact curve/signature scheme to the implementation).
func (k *KeyBackend) VerifySignature(player, keyName, nonce string, signature []byte) error {
	raw, err := k.players.PublicKey(player, keyName)
	if err != nil {
		return fmt.Errorf("auth: loading public key %q for %q: %w", keyName, player, err)
	}
	if raw == nil {
		return ErrInvalidCredentials
	}
	pub, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return fmt.Errorf("auth: parsing stored public key for %q: %w", player, err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok || ecdsaPub.Curve != elliptic.P256() {
		return fmt.Errorf("auth: public key for %q is not P-256 ECDSA", player)
	}
	digest := sha256.Sum256([]byte(nonce))
	if !ecdsa.VerifyASN1(ecdsaPub, digest[:], signature) {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate implements POST /api/client/key end to end: the nonce token
// (minted by POST /api/client/nonce) must still be valid and must name the
// same player the signature claims to be from, and the signature must
// verify against that player's stored key. On success it mints the 1h
// session token spec.md §6 promises.
func (k *KeyBackend) Authenticate(player, keyName, nonceToken string, signature []byte) (string, error) {
	noncePlayer, err := k.tokens.VerifyNonce(nonceToken)
	if err != nil {
		return "", fmt.Errorf("auth: %w: %w", ErrInvalidCredentials, err)
	}
	if noncePlayer != player {
		return "", ErrInvalidCredentials
	}
	if err := k.VerifySignature(player, keyName, nonceToken, signature); err != nil {
		return "", err
	}
	token, err := k.tokens.IssueSessionToken(player)
	if err != nil {
		return "", err
	}
	return token, nil
}
