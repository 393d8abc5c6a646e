package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"chatpro/internal/models"
	"chatpro/internal/transport"
)

// Credential is the locally held session record. It lives until explicit
// logout or until it is found absent or corrupt, at which point the user
// must authenticate again.
type Credential struct {
	Token    string
	UserID   int64
	Username string
}

// Gate validates presence of a local credential before any authorized
// flow runs, and owns login, registration, and logout.
type Gate struct {
	client *transport.Client
	store  *Store
	log    *slog.Logger
}

func New(client *transport.Client, store *Store) *Gate {
	return &Gate{
		client: client,
		store:  store,
		log:    slog.Default().With("component", "gate"),
	}
}

// Current returns the persisted credential, or ErrNotAuthenticated when
// it is absent or unreadable.
func (g *Gate) Current() (Credential, error) {
	cred, err := g.store.GetCredential()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			g.log.Warn("discarding unreadable credential", "error", err)
			_ = g.store.DeleteCredential()
		}
		return Credential{}, models.ErrNotAuthenticated
	}
	if cred.UserID == 0 {
		return Credential{}, models.ErrNotAuthenticated
	}
	return cred, nil
}

// Login authenticates against the remote and persists the credential.
func (g *Gate) Login(ctx context.Context, username, password string) (Credential, error) {
	if username == "" || password == "" {
		return Credential{}, &models.ValidationError{Reason: "username and password are required"}
	}

	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	raw, err := g.client.Call(ctx, http.MethodPost, "/users/login", body, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("login failed: %w", err)
	}

	// Some server builds report the id as "userId" instead of "id".
	var resp struct {
		ID       int64  `json:"id"`
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Credential{}, fmt.Errorf("failed to decode login response: %w", err)
	}

	userID := resp.ID
	if userID == 0 {
		userID = resp.UserID
	}
	if userID == 0 {
		return Credential{}, fmt.Errorf("login response carried no user id")
	}

	cred := Credential{
		Token:    resp.Token,
		UserID:   userID,
		Username: resp.Username,
	}
	if cred.Username == "" {
		cred.Username = username
	}

	if err := g.store.PutCredential(cred); err != nil {
		return Credential{}, fmt.Errorf("failed to persist credential: %w", err)
	}

	g.log.Info("logged in", "userId", cred.UserID, "username", cred.Username)

	return cred, nil
}

// Register creates a new account. The caller logs in separately.
func (g *Gate) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return &models.ValidationError{Reason: "username and password are required"}
	}

	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	if _, err := g.client.Call(ctx, http.MethodPost, "/users/register", body, nil); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	return nil
}

// Logout tells the remote best-effort and always clears the local
// credential, even when the remote call fails.
func (g *Gate) Logout(ctx context.Context) error {
	cred, err := g.Current()
	if err == nil {
		_, err := g.client.Call(ctx, http.MethodPost, "/users/logout", nil,
			&transport.Identity{UserID: cred.UserID})
		if err != nil {
			g.log.Warn("remote logout failed, clearing local credential anyway", "error", err)
		}
	}

	if err := g.store.DeleteCredential(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	return nil
}
