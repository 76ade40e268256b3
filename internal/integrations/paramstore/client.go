package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by KeyStore.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// KeyStore resolves the gateway API key from a SecureString parameter. The
// value is either the raw key or a JSON object {"token": "..."}. A resolved
// key is cached for the lifetime of the process; failures are not cached, so
// the next request retries the lookup.
type KeyStore struct {
	api  ssmAPI
	name string

	mu  sync.Mutex
	key string
}

// NewKeyStore creates a KeyStore reading the parameter called name.
func NewKeyStore(api ssmAPI, name string) (*KeyStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: name is required")
	}
	return &KeyStore{api: api, name: name}, nil
}

func (s *KeyStore) APIKey(ctx context.Context) (string, error) {
	if s == nil || s.api == nil {
		return "", errors.New("paramstore: key store not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != "" {
		return s.key, nil
	}

	raw, err := s.getParameter(ctx)
	if err != nil {
		return "", err
	}
	key, err := parseKey(raw)
	if err != nil {
		return "", fmt.Errorf("paramstore: parameter %q: %w", s.name, err)
	}
	s.key = key
	return key, nil
}

func (s *KeyStore) getParameter(ctx context.Context) (string, error) {
	name := s.name
	withDecryption := true
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

type tokenPayload struct {
	Token string `json:"token"`
}

func parseKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var p tokenPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return "", fmt.Errorf("decode token payload: %w", err)
		}
		raw = strings.TrimSpace(p.Token)
	}
	if raw == "" {
		return "", errors.New("empty API key")
	}
	return raw, nil
}
