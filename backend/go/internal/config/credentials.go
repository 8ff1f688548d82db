package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidCredentials is wrapped by every LoadServiceAccount failure.
var ErrInvalidCredentials = errors.New("invalid service account credentials")

// ServiceAccount is the subset of a Google service account key the OCR client needs.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount parses a service account key. The input must be a single
// well-formed JSON object; it is never patched up.
func LoadServiceAccount(raw []byte) (*ServiceAccount, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidCredentials)
	}

	var sa ServiceAccount
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&sa); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after key object", ErrInvalidCredentials)
	}

	if sa.Type != "" && sa.Type != "service_account" {
		return nil, fmt.Errorf("%w: type %q is not service_account", ErrInvalidCredentials, sa.Type)
	}
	if strings.TrimSpace(sa.ClientEmail) == "" {
		return nil, fmt.Errorf("%w: client_email is missing", ErrInvalidCredentials)
	}
	if !strings.Contains(sa.PrivateKey, "PRIVATE KEY") {
		return nil, fmt.Errorf("%w: private_key is missing or not PEM", ErrInvalidCredentials)
	}
	return &sa, nil
}

// ServiceAccountJSON returns the configured key bytes, reading the file when
// no inline key is set, and checks them with LoadServiceAccount.
func (c DocAIConfig) ServiceAccountJSON() ([]byte, error) {
	raw := []byte(c.CredentialsJSON)
	if len(bytes.TrimSpace(raw)) == 0 {
		if c.CredentialsFile == "" {
			return nil, fmt.Errorf("%w: no credentialsJson or credentialsFile configured", ErrInvalidCredentials)
		}
		b, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file '%s': %w", c.CredentialsFile, err)
		}
		raw = b
	}
	if _, err := LoadServiceAccount(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
