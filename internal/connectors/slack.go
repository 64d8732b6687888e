// internal/connectors/slack.go
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"opsgate/internal/vault"
)

const defaultSlackBase = "https://slack.com/api"

// SlackClient posts messages as the calling user.
type SlackClient struct {
	vault   *vault.Vault
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewSlackClient(v *vault.Vault, log *zap.SugaredLogger) *SlackClient {
	return &SlackClient{vault: v, baseURL: defaultSlackBase, http: newHTTPClient(), log: log}
}

// NewSlackClientWithBase overrides the API base, for tests.
func NewSlackClientWithBase(v *vault.Vault, baseURL string, log *zap.SugaredLogger) *SlackClient {
	c := NewSlackClient(v, log)
	c.baseURL = baseURL
	return c
}

// PostMessage sends text to a channel with the user's own token. Vault
// errors (not connected, expired) propagate unchanged for the handler to map.
func (c *SlackClient) PostMessage(ctx context.Context, userID, channel, text string) error {
	cred, err := c.vault.GetCredential(ctx, userID, ProviderSlack)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]string{"channel": channel, "text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("slack: unexpected status %d", res.StatusCode)
	}
	// Slack reports API-level failure inside a 200 body.
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("slack: %s", out.Error)
	}
	return nil
}
