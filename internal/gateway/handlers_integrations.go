// internal/gateway/handlers_integrations.go
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"opsgate/internal/auth"
	"opsgate/internal/connectors"
	"opsgate/internal/vault"
	"opsgate/pkg/apierr"
	"opsgate/pkg/middleware"
)

func (a *App) handleIntegrationStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !connectors.KnownProvider(provider) {
		apierr.WriteError(w, apierr.BadRequest("unknown provider"))
		return
	}
	pr, _ := auth.PrincipalFrom(r.Context())
	connected, expiresAt, err := a.vault.Connected(r.Context(), pr.SubjectID, provider)
	if err != nil {
		a.log.Errorw("integration status", "provider", provider, "err", err)
		apierr.WriteError(w, apierr.Internal())
		return
	}
	data := map[string]any{"provider": provider, "connected": connected}
	if connected {
		data["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	apierr.WriteJSON(w, http.StatusOK, data)
}

type connectRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// handleIntegrationConnect stores tokens obtained by the frontend's OAuth
// exchange. The vault encrypts before anything touches the store.
func (a *App) handleIntegrationConnect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !connectors.KnownProvider(provider) {
		apierr.WriteError(w, apierr.BadRequest("unknown provider"))
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" || req.ExpiresIn <= 0 {
		apierr.WriteError(w, apierr.BadRequest("access_token and expires_in required"))
		return
	}
	pr, _ := auth.PrincipalFrom(r.Context())
	expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	if err := a.vault.PutCredential(r.Context(), pr.SubjectID, provider, req.AccessToken, req.RefreshToken, expiresAt); err != nil {
		a.log.Errorw("credential store failed", "provider", provider, "err", err)
		apierr.WriteError(w, apierr.Internal())
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, map[string]any{"provider": provider, "connected": true})
}

func (a *App) handleIntegrationDisconnect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !connectors.KnownProvider(provider) {
		apierr.WriteError(w, apierr.BadRequest("unknown provider"))
		return
	}
	pr, _ := auth.PrincipalFrom(r.Context())
	if err := a.vault.DeleteCredential(r.Context(), pr.SubjectID, provider); err != nil {
		a.log.Errorw("credential delete failed", "provider", provider, "err", err)
		apierr.WriteError(w, apierr.Internal())
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"provider": provider, "connected": false})
}

type slackMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func (a *App) handleSlackMessage(w http.ResponseWriter, r *http.Request) {
	var req slackMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == "" || req.Text == "" {
		apierr.WriteError(w, apierr.BadRequest("channel and text required"))
		return
	}
	pr, _ := auth.PrincipalFrom(r.Context())
	if err := a.slack.PostMessage(r.Context(), pr.SubjectID, req.Channel, req.Text); err != nil {
		a.writeConnectorError(w, connectors.ProviderSlack, err)
		return
	}
	a.hub.Publish(middleware.TenantFrom(r.Context()), "integrations", "message.sent",
		map[string]any{"provider": connectors.ProviderSlack, "channel": req.Channel})
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"sent": true})
}

type gmailMessageRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (a *App) handleGmailMessage(w http.ResponseWriter, r *http.Request) {
	var req gmailMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		apierr.WriteError(w, apierr.BadRequest("to required"))
		return
	}
	pr, _ := auth.PrincipalFrom(r.Context())
	if err := a.gmail.SendMessage(r.Context(), pr.SubjectID, req.To, req.Subject, req.Body); err != nil {
		a.writeConnectorError(w, connectors.ProviderGmail, err)
		return
	}
	a.hub.Publish(middleware.TenantFrom(r.Context()), "integrations", "message.sent",
		map[string]any{"provider": connectors.ProviderGmail, "to": req.To})
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// writeConnectorError maps vault outcomes to user-actionable responses.
func (a *App) writeConnectorError(w http.ResponseWriter, provider string, err error) {
	switch {
	case errors.Is(err, vault.ErrNotConnected):
		apierr.WriteError(w, apierr.NotConnected(provider))
	case errors.Is(err, vault.ErrExpired):
		apierr.WriteError(w, apierr.CredentialExpired(provider))
	default:
		a.log.Warnw("connector call failed", "provider", provider, "err", err)
		apierr.WriteError(w, apierr.BadGateway())
	}
}
