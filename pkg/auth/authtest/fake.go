// Package authtest provides a scriptable in-memory token service for tests.
package authtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/auth"
)

// FakeTokenService implements auth.TokenService entirely in memory. Tests
// script which users hold tokens, which tokens hide behind a magic code and
// which exchange requests succeed.
type FakeTokenService struct {
	mu sync.Mutex

	tokens    map[string]string // connection|user -> token, available silently
	gated     map[string]gated  // connection|user -> token behind a code
	exchanges map[string]string // connection|user|sent token -> minted token

	// SignInLink is returned in sign-in resources.
	SignInLink string
	// ExchangeID, when set, advertises SSO in sign-in resources.
	ExchangeID string

	// Calls records every operation as "op connection user".
	Calls []string
	// SignedOut records "connection|user" pairs in sign-out order.
	SignedOut []string
}

type gated struct {
	token string
	code  string
}

// NewFakeTokenService returns an empty scripted service.
func NewFakeTokenService() *FakeTokenService {
	return &FakeTokenService{
		tokens:     make(map[string]string),
		gated:      make(map[string]gated),
		exchanges:  make(map[string]string),
		SignInLink: "https://signin.example/start",
	}
}

func key(connection, userID string) string {
	return connection + "|" + userID
}

// SetToken makes a token silently available for the user.
func (f *FakeTokenService) SetToken(connection, userID, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[key(connection, userID)] = token
}

// GateToken makes a token available only once the magic code is presented.
func (f *FakeTokenService) GateToken(connection, userID, token, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated[key(connection, userID)] = gated{token: token, code: code}
}

// AllowExchange scripts an SSO exchange: sending sent mints minted.
func (f *FakeTokenService) AllowExchange(connection, userID, sent, minted string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[key(connection, userID)+"|"+sent] = minted
}

// HasToken reports whether the user currently holds a token.
func (f *FakeTokenService) HasToken(connection, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[key(connection, userID)]
	return ok
}

// GetToken implements auth.TokenService.
func (f *FakeTokenService) GetToken(_ context.Context, connection, channelID, userID, magicCode string) (*auth.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetToken", connection, userID)

	k := key(connection, userID)
	if g, ok := f.gated[k]; ok && magicCode != "" && magicCode == g.code {
		delete(f.gated, k)
		f.tokens[k] = g.token
	}
	token, ok := f.tokens[k]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	return &auth.TokenResponse{
		ChannelID:      channelID,
		ConnectionName: connection,
		Token:          token,
	}, nil
}

// SignOut implements auth.TokenService.
func (f *FakeTokenService) SignOut(_ context.Context, connection, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SignOut", connection, userID)
	delete(f.tokens, key(connection, userID))
	f.SignedOut = append(f.SignedOut, key(connection, userID))
	return nil
}

// SignInResource implements auth.TokenService.
func (f *FakeTokenService) SignInResource(_ context.Context, connection string, act *activity.Activity, _ string) (*auth.SignInResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SignInResource", connection, act.FromID())
	res := &auth.SignInResource{SignInLink: f.SignInLink}
	if f.ExchangeID != "" {
		res.TokenExchangeResource = &auth.TokenExchangeResource{ID: f.ExchangeID}
	}
	return res, nil
}

// ExchangeToken implements auth.TokenService.
func (f *FakeTokenService) ExchangeToken(_ context.Context, connection, channelID, userID string, req *auth.TokenExchangeRequest) (*auth.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExchangeToken", connection, userID)

	minted, ok := f.exchanges[key(connection, userID)+"|"+req.Token]
	if !ok {
		return nil, auth.ErrTokenNotFound
	}
	f.tokens[key(connection, userID)] = minted
	return &auth.TokenResponse{
		ChannelID:      channelID,
		ConnectionName: connection,
		Token:          minted,
	}, nil
}

// TokenOrSignInResource implements auth.TokenService.
func (f *FakeTokenService) TokenOrSignInResource(ctx context.Context, connection string, act *activity.Activity, finalRedirect string) (*auth.TokenOrResource, error) {
	token, err := f.GetToken(ctx, connection, act.ChannelID, act.FromID(), "")
	if err == nil {
		return &auth.TokenOrResource{Token: token}, nil
	}
	res, err := f.SignInResource(ctx, connection, act, finalRedirect)
	if err != nil {
		return nil, err
	}
	return &auth.TokenOrResource{Resource: res}, nil
}

func (f *FakeTokenService) record(op, connection, userID string) {
	f.Calls = append(f.Calls, fmt.Sprintf("%s %s %s", op, connection, userID))
}
