// Package config loads and stores the inference service credentials
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// APIKeyVar is the variable holding the API key in the env file and the environment
const APIKeyVar = "OPENAI_API_KEY"

// DefaultEnvFile is the credential file looked up in the working directory
const DefaultEnvFile = ".env"

// ErrEmptyAPIKey is returned when saving a blank key
var ErrEmptyAPIKey = errors.New("no API key entered")

// LoadAPIKey reads the API key from an env file.
// A missing file yields an empty key and no error.
func LoadAPIKey(path string) (string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading env file: %w", err)
	}
	return strings.TrimSpace(values[APIKeyVar]), nil
}

// SaveAPIKey writes the API key as the only line of the env file, unquoted:
// OPENAI_API_KEY=<value>
func SaveAPIKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}
	if err := os.WriteFile(path, []byte(APIKeyVar+"="+key), 0600); err != nil {
		return fmt.Errorf("writing env file: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restricting env file: %w", err)
	}
	return nil
}

// ResolveAPIKey picks the key from the flag, then the env file, then the process environment
func ResolveAPIKey(flagValue, envFile string) (string, error) {
	if key := strings.TrimSpace(flagValue); key != "" {
		return key, nil
	}
	key, err := LoadAPIKey(envFile)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}
	return strings.TrimSpace(os.Getenv(APIKeyVar)), nil
}
