package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ExchangeError is returned when the token endpoint rejects a grant.
type ExchangeError struct {
	Provider    string
	Status      int
	StatusText  string
	Code        string
	Description string
	Body        string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed: %d %s: %s %s",
		e.Provider, e.Status, e.StatusText, e.Code, e.Description)
}

// PasswordGrant exchanges a username and password for an access token
// (resource owner password credentials grant).
type PasswordGrant struct {
	decl       Declaration
	httpClient *http.Client
	config     *oauth2.Config
}

func NewPasswordGrant(decl Declaration, httpClient *http.Client) (*PasswordGrant, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &PasswordGrant{
		decl:       decl,
		httpClient: httpClient,
		config: &oauth2.Config{
			ClientID: decl.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  decl.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(decl.Scope),
		},
	}, nil
}

// Exchange posts grant_type=password with the given credentials.
func (g *PasswordGrant) Exchange(ctx context.Context, username, password string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := g.config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		exchangeFailure.WithLabelValues(g.decl.Provider).Inc()
		tokenValid.WithLabelValues(g.decl.Provider).Set(0)

		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, g.exchangeError(retrieveErr)
		}
		return nil, fmt.Errorf("%s token exchange: %w", g.decl.Provider, err)
	}

	exchangeSuccess.WithLabelValues(g.decl.Provider).Inc()
	tokenValid.WithLabelValues(g.decl.Provider).Set(1)
	return token, nil
}

func (g *PasswordGrant) exchangeError(err *oauth2.RetrieveError) *ExchangeError {
	out := &ExchangeError{
		Provider:    g.decl.Provider,
		Code:        err.ErrorCode,
		Description: err.ErrorDescription,
		Body:        strings.TrimSpace(string(err.Body)),
	}
	if err.Response != nil {
		out.Status = err.Response.StatusCode
		out.StatusText = http.StatusText(err.Response.StatusCode)
	}

	// Some endpoints answer with a JSON error body but a non-JSON content type.
	if out.Code == "" && out.Description == "" && len(err.Body) > 0 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(err.Body, &body) == nil {
			out.Code = body.Error
			out.Description = body.ErrorDescription
		}
	}
	return out
}
