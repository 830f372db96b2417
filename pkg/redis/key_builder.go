package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Session key builders

func (kb *KeyBuilder) KeyRoomUserName(clientID, roomID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyRoomUserName, clientID, roomID))
}

func (kb *KeyBuilder) KeyTermsAccepted(clientID, version string) string {
	return kb.BuildKey(fmt.Sprintf(KeyTermsAccepted, clientID, version))
}

// KeyHotelLookup keys hotel lookups by a digest of the normalized keyword so
// arbitrary user input never ends up in a key
func (kb *KeyBuilder) KeyHotelLookup(keyword string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(keyword))))
	return kb.BuildKey(fmt.Sprintf(KeyHotelLookup, hex.EncodeToString(sum[:8])))
}

// KeyRealtime is the pub/sub channel change events travel on
func (kb *KeyBuilder) KeyRealtime(channel string) string {
	return kb.BuildKey(fmt.Sprintf(KeyRealtime, channel))
}
