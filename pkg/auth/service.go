package auth

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/activity"
)

// ErrTokenNotFound reports that the user has no token for a connection.
// Callers treat it as "not signed in yet", not as a transport failure.
var ErrTokenNotFound = errors.New("auth: token not found")

// TokenResponse is a token minted for one user on one connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty" mapstructure:"channelId"`
	ConnectionName string `json:"connectionName,omitempty" mapstructure:"connectionName"`
	Token          string `json:"token,omitempty" mapstructure:"token"`
	Expiration     string `json:"expiration,omitempty" mapstructure:"expiration"`
}

// TokenExchangeResource advertises single-sign-on exchange for a connection.
type TokenExchangeResource struct {
	ID  string `json:"id,omitempty" mapstructure:"id"`
	URI string `json:"uri,omitempty" mapstructure:"uri"`
}

// TokenPostResource carries the session token for direct token posts.
type TokenPostResource struct {
	SasURL string `json:"sasUrl,omitempty" mapstructure:"sasUrl"`
}

// SignInResource is everything a channel needs to render a sign-in card.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink,omitempty" mapstructure:"signInLink"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty" mapstructure:"tokenExchangeResource"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty" mapstructure:"tokenPostResource"`
}

// TokenExchangeRequest asks the service to swap a channel-issued token for a
// connection token.
type TokenExchangeRequest struct {
	ID    string `json:"id,omitempty" mapstructure:"id"`
	URI   string `json:"uri,omitempty" mapstructure:"uri"`
	Token string `json:"token,omitempty" mapstructure:"token"`
}

// TokenOrResource is the combined answer to "token if you have one, sign-in
// material if you don't". Exactly one side is set.
type TokenOrResource struct {
	Token    *TokenResponse  `json:"tokenResponse,omitempty" mapstructure:"tokenResponse"`
	Resource *SignInResource `json:"signInResource,omitempty" mapstructure:"signInResource"`
}

// TokenService is the port to the token store and identity provider. All
// lookups are scoped by connection name, channel and user id.
//
// GetToken returns ErrTokenNotFound when the user has not completed a
// sign-in; magicCode may be empty for a silent check.
type TokenService interface {
	GetToken(ctx context.Context, connection, channelID, userID, magicCode string) (*TokenResponse, error)
	SignOut(ctx context.Context, connection, channelID, userID string) error
	SignInResource(ctx context.Context, connection string, act *activity.Activity, finalRedirect string) (*SignInResource, error)
	ExchangeToken(ctx context.Context, connection, channelID, userID string, req *TokenExchangeRequest) (*TokenResponse, error)
	TokenOrSignInResource(ctx context.Context, connection string, act *activity.Activity, finalRedirect string) (*TokenOrResource, error)
}
