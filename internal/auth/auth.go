// Package auth resolves API keys to client identities for the HTTP API.
package auth

import (
	"context"
	"fmt"
	"strings"
)

// Identity is the client a request was authenticated as.
type Identity struct {
	Client string
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma separated list of key:client pairs.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		key, client, ok := strings.Cut(strings.TrimSpace(entry), ":")
		key = strings.TrimSpace(key)
		client = strings.TrimSpace(client)
		if !ok || strings.Contains(client, ":") {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:client", entry)
		}
		if key == "" || client == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/client", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate static key for client %q", client)
		}
		validator.keys[key] = Identity{Client: client}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
