// Package oauth manages upstream OAuth token lifecycle: proactive refresh
// ahead of expiry with per-account coalescing, and a one-shot resync from the
// host credential file for Anthropic subscription accounts.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/sync/singleflight"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/model"
)

// Public OAuth clients of the respective CLIs; refresh grants against these
// endpoints only need the refresh token itself.
const (
	anthropicTokenURL = "https://console.anthropic.com/v1/oauth/token"
	anthropicClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	openaiTokenURL = "https://auth.openai.com/oauth/token"
	openaiClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
)

// TokenSource hands out valid access tokens for OAuth accounts, refreshing
// them ahead of expiry. Concurrent refreshes of the same account are
// coalesced into a single upstream call.
type TokenSource struct {
	group  singleflight.Group
	client *http.Client

	// persist writes refreshed material back to the record store.
	persist func(id int, accessToken, refreshToken string, expiresAt int64) error

	credentialsFile string
	tokenURL        func(provider string) (url, clientID string)
}

// NewTokenSource returns a TokenSource backed by the account store.
func NewTokenSource() *TokenSource {
	return &TokenSource{
		client:          &http.Client{Timeout: 30 * time.Second},
		persist:         model.UpdateAccountTokens,
		credentialsFile: config.ClaudeCredentialsFile,
		tokenURL:        providerTokenURL,
	}
}

func providerTokenURL(provider string) (string, string) {
	switch provider {
	case model.ProviderAnthropic:
		return anthropicTokenURL, anthropicClientID
	case model.ProviderOpenAI, model.ProviderOpenAISub:
		return openaiTokenURL, openaiClientID
	}
	return "", ""
}

// EnsureValidToken returns an access token usable right now. API-key accounts
// pass through; OAuth tokens are refreshed when they expire within the
// refresh window. The account's in-memory token fields are updated on
// refresh.
func (s *TokenSource) EnsureValidToken(ctx context.Context, account *model.Account) (string, error) {
	if !account.IsOAuth() {
		return account.AccessToken, nil
	}
	if !account.TokenExpiresWithin(config.OAuthRefreshWindow) {
		return account.AccessToken, nil
	}
	if account.RefreshToken == "" {
		return "", errors.Errorf("oauth account %d has no refresh token", account.Id)
	}

	v, err, _ := s.group.Do(strconv.Itoa(account.Id), func() (any, error) {
		return s.refresh(ctx, account)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *TokenSource) refresh(ctx context.Context, account *model.Account) (string, error) {
	// another waiter may have refreshed while we queued
	if !account.TokenExpiresWithin(config.OAuthRefreshWindow) {
		return account.AccessToken, nil
	}

	url, clientID := s.tokenURL(account.Provider)
	if url == "" {
		return "", errors.Errorf("provider %q has no token endpoint", account.Provider)
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": account.RefreshToken,
		"client_id":     clientID,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal refresh grant")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "refresh token of account %d", account.Id)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("refresh token of account %d: upstream status %d", account.Id, resp.StatusCode)
	}

	var token tokenResponse
	if err = json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if token.AccessToken == "" {
		return "", errors.Errorf("refresh of account %d returned no access token", account.Id)
	}

	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second).UnixMilli()

	if err = s.persist(account.Id, account.AccessToken, account.RefreshToken, account.ExpiresAt); err != nil {
		return "", errors.Wrap(err, "persist refreshed tokens")
	}
	return account.AccessToken, nil
}

// credentialFile is the shape the Claude CLI writes on the host.
type credentialFile struct {
	ClaudeAiOauth struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresAt    int64  `json:"expiresAt"`
	} `json:"claudeAiOauth"`
}

// ResyncFromCredentialFile reloads token material from the host credential
// file after an upstream 401. It reports whether newer material was found;
// the caller then retries the same account once.
func (s *TokenSource) ResyncFromCredentialFile(account *model.Account) bool {
	if account.Provider != model.ProviderAnthropic || !account.IsOAuth() || s.credentialsFile == "" {
		return false
	}
	raw, err := os.ReadFile(s.credentialsFile)
	if err != nil {
		return false
	}
	var creds credentialFile
	if err = json.Unmarshal(raw, &creds); err != nil {
		return false
	}
	oauth := creds.ClaudeAiOauth
	if oauth.AccessToken == "" || oauth.AccessToken == account.AccessToken {
		return false
	}

	account.AccessToken = oauth.AccessToken
	if oauth.RefreshToken != "" {
		account.RefreshToken = oauth.RefreshToken
	}
	if oauth.ExpiresAt > 0 {
		account.ExpiresAt = oauth.ExpiresAt
	}
	if err = s.persist(account.Id, account.AccessToken, account.RefreshToken, account.ExpiresAt); err != nil {
		return false
	}
	return true
}
