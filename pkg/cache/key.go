package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Kinds of scope identifiers kept in the cache.
const (
	KindAccount = "account"
	KindCompany = "company"
)

// CacheKey identifies one cached scope identifier.
type CacheKey struct {
	// Kind is the identifier type, e.g. KindAccount.
	Kind string

	// Tenant separates API keys; see TenantFor.
	Tenant string

	// Params narrow the key, e.g. {"account_id": "ACC1"} for a company lookup.
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: callrail:scope:kind:param1=val1:param2=val2:tenant=abc
//
// Example:
//
//	callrail:scope:company:account_id=ACC1:tenant=3f2a9c0d1b7e
func (k CacheKey) String() string {
	parts := []string{"callrail", "scope"}

	if k.Kind != "" {
		parts = append(parts, k.Kind)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	if k.Tenant != "" {
		parts = append(parts, "tenant="+k.Tenant)
	}

	return strings.Join(parts, ":")
}

// TenantFor derives a stable tenant id from an API key without storing the key.
func TenantFor(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:6])
}
