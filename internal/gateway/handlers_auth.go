// internal/gateway/handlers_auth.go
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"opsgate/internal/auth"
	"opsgate/pkg/apierr"
)

type credentialsRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" {
		apierr.WriteError(w, apierr.BadRequest("tenant_id, email and password required"))
		return
	}
	u, err := auth.Register(r.Context(), a.users, req.TenantID, req.Email, req.Password)
	if errors.Is(err, auth.ErrUserExists) {
		apierr.WriteError(w, apierr.BadRequest("account already exists"))
		return
	}
	if err != nil {
		apierr.WriteError(w, apierr.BadRequest(err.Error()))
		return
	}
	a.writeSession(w, u, http.StatusCreated)
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" {
		apierr.WriteError(w, apierr.BadRequest("tenant_id, email and password required"))
		return
	}
	u, err := auth.Login(r.Context(), a.users, req.TenantID, req.Email, req.Password)
	if err != nil {
		// Wrong email and wrong password are indistinguishable on purpose.
		apierr.WriteError(w, apierr.AuthInvalid())
		return
	}
	a.writeSession(w, u, http.StatusOK)
}

func (a *App) writeSession(w http.ResponseWriter, u auth.User, status int) {
	tok, exp, err := a.issuer.Issue(u)
	if err != nil {
		a.log.Errorw("session issue failed", "err", err)
		apierr.WriteError(w, apierr.Internal())
		return
	}
	apierr.WriteJSON(w, status, sessionResponse{
		Token:     tok,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
		UserID:    u.ID,
	})
}
