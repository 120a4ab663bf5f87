package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// FederatedIdentity is what an external provider tells us about a user.
type FederatedIdentity struct {
	Subject  string
	Email    string
	Verified bool
}

// Federator runs the authorization-code flow of an external provider.
type Federator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (FederatedIdentity, error)
}

// GoogleFederator signs users in with their Google account.
type GoogleFederator struct {
	cfg *oauth2.Config
}

var _ Federator = (*GoogleFederator)(nil)

func NewGoogleFederator(clientID, clientSecret, redirectURL string) *GoogleFederator {
	return &GoogleFederator{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{oauth2api.OpenIDScope, oauth2api.UserinfoEmailScope},
	}}
}

func (g *GoogleFederator) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the callback code for a token and reads the userinfo
// endpoint with it.
func (g *GoogleFederator) Exchange(ctx context.Context, code string) (FederatedIdentity, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("exchange code: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(g.cfg.TokenSource(ctx, tok)))
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("get userinfo: %w", err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return FederatedIdentity{}, errors.New("google account has no email")
	}

	return FederatedIdentity{
		Subject:  info.Id,
		Email:    info.Email,
		Verified: info.VerifiedEmail != nil && *info.VerifiedEmail,
	}, nil
}
