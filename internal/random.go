package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

type SessionID [16]byte

const (
	apiKeyPrefix  = "ak_"
	apiKeyRawSize = 32
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewTokenID returns a random jti.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewAPIKey returns "ak_" followed by 32 random bytes in base64url.
func NewAPIKey() (string, error) {
	var raw [apiKeyRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// IsAPIKey reports whether v has the shape produced by NewAPIKey.
func IsAPIKey(v string) bool {
	if len(v) != len(apiKeyPrefix)+base64.RawURLEncoding.EncodedLen(apiKeyRawSize) || v[:len(apiKeyPrefix)] != apiKeyPrefix {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(v[len(apiKeyPrefix):])
	return err == nil
}
