// Package credentials holds the digest and token primitives behind
// passwords, remember-me, activation and password reset.
package credentials

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinCost is the reduced work factor allowed outside production.
	MinCost = bcrypt.MinCost
	// DefaultCost is the production work factor floor.
	DefaultCost = bcrypt.DefaultCost

	tokenBytes = 16
)

// Hasher computes and verifies bcrypt digests at a fixed cost.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher returns a Hasher for cost. Costs below DefaultCost are refused
// when production is true. The digest used by CompareDummy is computed here.
func NewHasher(cost int, production bool) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	if production && cost < DefaultCost {
		return nil, fmt.Errorf("bcrypt cost %d is not allowed in production", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy password"), cost)
	if err != nil {
		return nil, fmt.Errorf("dummy digest: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int { return h.cost }

// Digest hashes plaintext with a fresh salt.
func (h *Hasher) Digest(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Matches reports whether plaintext hashes to digest. The cost embedded in
// digest is used, so digests created under a different cost still verify.
// An empty or malformed digest never matches.
func (h *Hasher) Matches(digest, plaintext string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// CompareDummy runs one comparison at the configured cost against a digest
// no user owns. Callers use it when there is no digest to check, so a miss
// takes as long as a wrong password.
func (h *Hasher) CompareDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}

// NewToken returns 128 random bits encoded as unpadded URL-safe base64.
func NewToken() (string, error) {
	b, err := common.RandomBytes(tokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue generates a token and its digest. The token is handed to the user
// once; only the digest is stored.
func (h *Hasher) Issue() (token, digest string, err error) {
	token, err = NewToken()
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	digest, err = h.Digest(token)
	if err != nil {
		return "", "", fmt.Errorf("digest token: %w", err)
	}
	return token, digest, nil
}

// Authenticated checks token against the user's stored digest of kind.
// A missing digest yields false.
func (h *Hasher) Authenticated(u *models.User, kind models.TokenKind, token string) bool {
	if u == nil || token == "" {
		return false
	}
	return h.Matches(u.Digest(kind), token)
}

// PasswordResetExpired reports whether the reset issued to u is older than
// window at now. A user with no recorded issuance is treated as expired.
func PasswordResetExpired(u *models.User, now time.Time, window time.Duration) bool {
	if !u.ResetSentAt.Valid {
		return true
	}
	return u.ResetSentAt.Time.Before(now.Add(-window))
}
