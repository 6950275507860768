package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/grantscope/harvester/internal/harvest"
	"github.com/grantscope/harvester/internal/transport"
)

// credential is a resolved header the engine attaches to every page request.
type credential struct {
	header string
	value  string
}

// resolveAuth turns an auth variant into a ready header. OAuth2 performs the
// token exchange here, once per harvest; every failure surfaces as
// harvest.ErrAuthFailed rather than degrading to an unauthenticated request.
func (e *Engine) resolveAuth(ctx context.Context, auth harvest.AuthConfig) (*credential, error) {
	switch a := auth.(type) {
	case nil:
		return nil, nil
	case harvest.BearerAuth:
		if strings.TrimSpace(a.Token) == "" {
			return nil, fmt.Errorf("bearer token is empty: %w", harvest.ErrAuthFailed)
		}
		return &credential{header: "Authorization", value: "Bearer " + a.Token}, nil
	case harvest.BasicAuth:
		if a.Username == "" {
			return nil, fmt.Errorf("basic auth username is empty: %w", harvest.ErrAuthFailed)
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		return &credential{header: "Authorization", value: "Basic " + encoded}, nil
	case harvest.APIKeyAuth:
		if strings.TrimSpace(a.Key) == "" {
			return nil, fmt.Errorf("api key is empty: %w", harvest.ErrAuthFailed)
		}
		header := a.HeaderName
		if header == "" {
			header = "Authorization"
		}
		return &credential{header: header, value: a.Key}, nil
	case harvest.OAuth2Auth:
		token, err := e.exchangeClientCredentials(ctx, a)
		if err != nil {
			return nil, err
		}
		return &credential{header: "Authorization", value: "Bearer " + token}, nil
	default:
		return nil, fmt.Errorf("unsupported auth scheme %T: %w", auth, harvest.ErrAuthFailed)
	}
}

// exchangeClientCredentials runs the client_credentials grant against the
// source's token endpoint and returns the access token.
func (e *Engine) exchangeClientCredentials(ctx context.Context, a harvest.OAuth2Auth) (string, error) {
	if a.TokenURL == "" || a.ClientID == "" {
		return "", fmt.Errorf("oauth2 token url and client id are required: %w", harvest.ErrAuthFailed)
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	if a.Scope != "" {
		form.Set("scope", a.Scope)
	}

	resp, err := e.client.Post(ctx, a.TokenURL, transport.Options{
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Headers:     map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("oauth2 token exchange: %w: %w", err, harvest.ErrAuthFailed)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("oauth2 token endpoint returned %d: %w", resp.StatusCode, harvest.ErrAuthFailed)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := jsonAPI.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w: %w", err, harvest.ErrAuthFailed)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token: %w", harvest.ErrAuthFailed)
	}
	return payload.AccessToken, nil
}
