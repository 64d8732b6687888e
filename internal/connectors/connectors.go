// internal/connectors/connectors.go

// Package connectors holds the thin per-user third-party adapters. Each
// adapter fetches the calling user's credential from the vault immediately
// before the outbound call and sends with that bearer token; downstream
// services act strictly on behalf of the caller, never a shared credential.
package connectors

import (
	"net/http"
	"time"
)

const (
	ProviderSlack = "slack"
	ProviderGmail = "gmail"
)

// KnownProvider reports whether the gateway manages credentials for name.
func KnownProvider(name string) bool {
	return name == ProviderSlack || name == ProviderGmail
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
