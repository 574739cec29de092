package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// LoginScopes are requested at login: profile for the user record and
// calendar for reading and creating events.
var LoginScopes = []string{
	"openid",
	"profile",
	"email",
	calendar.CalendarScope,
}

// NewOAuthConfig builds the Google OAuth client configuration
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       LoginScopes,
		Endpoint:     google.Endpoint,
	}
}

// GoogleProfile is the subset of the Google userinfo response we keep
type GoogleProfile struct {
	Sub     string
	Email   string
	Name    string
	Picture string
}

// GoogleIdentity talks to Google's OAuth and userinfo endpoints
type GoogleIdentity struct {
	config  *oauth2.Config
	options []option.ClientOption
}

// NewGoogleIdentity creates the identity provider. Extra client options are
// applied to the userinfo client (tests point it at a fake endpoint).
func NewGoogleIdentity(config *oauth2.Config, opts ...option.ClientOption) *GoogleIdentity {
	return &GoogleIdentity{config: config, options: opts}
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google return a refresh token every time.
func (g *GoogleIdentity) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for Google tokens
func (g *GoogleIdentity) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// UserInfo fetches the Google profile of the token's owner
func (g *GoogleIdentity) UserInfo(ctx context.Context, token *oauth2.Token) (*GoogleProfile, error) {
	client := g.config.Client(ctx, token)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.options...)

	oauth2Service, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth2 service: %w", err)
	}

	info, err := oauth2Service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	return &GoogleProfile{
		Sub:     info.Id,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}

// Scope returns the granted scopes recorded on a token response, if any
func Scope(token *oauth2.Token) string {
	if s, ok := token.Extra("scope").(string); ok {
		return s
	}
	return ""
}
