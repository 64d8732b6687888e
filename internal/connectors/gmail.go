// internal/connectors/gmail.go
package connectors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"opsgate/internal/vault"
)

const defaultGmailBase = "https://gmail.googleapis.com/gmail/v1"

// GmailClient sends mail as the calling user.
type GmailClient struct {
	vault   *vault.Vault
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewGmailClient(v *vault.Vault, log *zap.SugaredLogger) *GmailClient {
	return &GmailClient{vault: v, baseURL: defaultGmailBase, http: newHTTPClient(), log: log}
}

func NewGmailClientWithBase(v *vault.Vault, baseURL string, log *zap.SugaredLogger) *GmailClient {
	c := NewGmailClient(v, log)
	c.baseURL = baseURL
	return c
}

// SendMessage builds a minimal RFC 2822 message and submits it under the
// user's own token.
func (c *GmailClient) SendMessage(ctx context.Context, userID, to, subject, bodyText string) error {
	cred, err := c.vault.GetCredential(ctx, userID, ProviderGmail)
	if err != nil {
		return err
	}
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, bodyText)
	payload, _ := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/me/messages/send", bytes.NewReader(payload))
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
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("gmail: unexpected status %d", res.StatusCode)
	}
	return nil
}
