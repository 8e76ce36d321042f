package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values.
// SSMProvider serves deployed environments; EnvVarProvider serves local runs.
type SecretProvider interface {
	// GetParametersBatch returns a value for every key it could resolve.
	// Keys it cannot find are omitted rather than reported as an error,
	// unless the backing store itself flags them as invalid.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
