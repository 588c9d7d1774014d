package idtoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ServiceAccount is the subset of a Google service-account key the verifier needs.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// ParseServiceAccount decodes a service-account JSON blob.
func ParseServiceAccount(raw []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("decode service account: %w", err)
	}
	sa.ProjectID = strings.TrimSpace(sa.ProjectID)
	if sa.ProjectID == "" {
		return ServiceAccount{}, errors.New("service account has no project_id")
	}
	return sa, nil
}

// ResolveProjectID picks the project ID from, in order: an explicit value,
// an inline credential blob, a credential file.
func ResolveProjectID(explicit, credentialJSON, credentialPath string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if raw := strings.TrimSpace(credentialJSON); raw != "" {
		sa, err := ParseServiceAccount([]byte(raw))
		if err != nil {
			return "", err
		}
		return sa.ProjectID, nil
	}
	if path := strings.TrimSpace(credentialPath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read service account: %w", err)
		}
		sa, err := ParseServiceAccount(raw)
		if err != nil {
			return "", err
		}
		return sa.ProjectID, nil
	}
	return "", errors.New("firebase project id not configured")
}
