package utils

import (
	"strings"
)

// secretConnKeys are the connection string settings that carry credentials.
var secretConnKeys = map[string]bool{
	"accountkey":            true,
	"sharedaccesssignature": true,
}

// MaskConnectionString hides the credentials of a storage connection string
// (Key=Value pairs separated by ';') while keeping account and endpoint visible.
func MaskConnectionString(connStr string) string {
	if connStr == "" {
		return "--- EMPTY ---"
	}
	parts := strings.Split(connStr, ";")
	for i, part := range parts {
		key, _, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		if secretConnKeys[strings.ToLower(strings.TrimSpace(key))] {
			parts[i] = key + "=***MASKED***"
		}
	}
	return strings.Join(parts, ";")
}
