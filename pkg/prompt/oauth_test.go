package prompt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/auth"
	"github.com/aretw0/arbor/pkg/auth/authtest"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/prompt"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func invokeActivity(name string, value any) *activity.Activity {
	return &activity.Activity{Type: activity.TypeInvoke, Name: name, Value: value}
}

// oauthFixture wires an OAuth prompt to a scripted token service.
type oauthFixture struct {
	*promptFixture
	svc    *authtest.FakeTokenService
	clock  *fakeClock
	prompt *prompt.OAuth
}

func newOAuthFixture(configure func(p *prompt.OAuth) *prompt.OAuth, settings auth.FlowSettings) *oauthFixture {
	svc := authtest.NewFakeTokenService()
	clock := newFakeClock()
	if settings.Connection == "" {
		settings.Connection = "github"
	}
	p := prompt.NewOAuth("login", auth.NewFlow(settings, svc)).WithClock(clock.Now)
	if configure != nil {
		p = configure(p)
	}
	return &oauthFixture{
		promptFixture: newPromptFixture(p),
		svc:           svc,
		clock:         clock,
		prompt:        p,
	}
}

func hasOAuthCard(a *activity.Activity) bool {
	for _, att := range a.Attachments {
		if att.ContentType == auth.OAuthCardContentType {
			return true
		}
	}
	return false
}

func TestOAuthPrompt_SilentToken(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{})
	f.svc.SetToken("github", "user-1", "tok-cached")

	res, sender := f.begin(t, "login", nil, activity.NewMessage("show repos"))
	require.Equal(t, dialog.StatusComplete, res.Status)
	token, ok := res.Result.(*auth.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "tok-cached", token.Token)
	assert.Empty(t, sender.sent, "no card when a token is already cached")
}

func TestOAuthPrompt_CardThenMagicCode(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{Title: "Connect", Text: "Sign in to continue"})
	f.svc.GateToken("github", "user-1", "tok-new", "123456")

	res, sender := f.begin(t, "login", nil, activity.NewMessage("show repos"))
	require.Equal(t, dialog.StatusWaiting, res.Status)
	require.Len(t, sender.sent, 1)
	assert.True(t, hasOAuthCard(sender.sent[0]))

	res, _ = f.send(t, activity.NewMessage("123456"))
	require.Equal(t, dialog.StatusComplete, res.Status)
	token, ok := res.Result.(*auth.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "tok-new", token.Token)
}

func TestOAuthPrompt_VerifyStateInvoke(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{})
	f.svc.GateToken("github", "user-1", "tok-verified", "654321")

	f.begin(t, "login", nil, activity.NewMessage("show repos"))

	res, sender := f.send(t, invokeActivity(auth.InvokeVerifyState, map[string]any{"state": "654321"}))
	require.Equal(t, dialog.StatusComplete, res.Status)
	token, ok := res.Result.(*auth.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "tok-verified", token.Token)

	require.NotEmpty(t, sender.sent)
	last := sender.sent[len(sender.sent)-1]
	require.Equal(t, activity.TypeInvokeResponse, last.Type)
	ir, ok := last.Value.(*activity.InvokeResponse)
	require.True(t, ok)
	assert.Equal(t, 200, ir.Status)
}

func TestOAuthPrompt_TokenExchangeInvoke(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{})
	f.svc.AllowExchange("github", "user-1", "sso-assertion", "tok-sso")

	f.begin(t, "login", nil, activity.NewMessage("deploy"))

	res, _ := f.send(t, invokeActivity(auth.InvokeTokenExchange, map[string]any{
		"id":             "ex-1",
		"connectionName": "github",
		"token":          "sso-assertion",
	}))
	require.Equal(t, dialog.StatusComplete, res.Status)
	token, ok := res.Result.(*auth.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "tok-sso", token.Token)
}

func TestOAuthPrompt_Timeout(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{Timeout: 5 * time.Minute})
	f.svc.GateToken("github", "user-1", "tok-late", "123456")

	f.begin(t, "login", nil, activity.NewMessage("show repos"))

	t.Run("unrelated events never trip the deadline", func(t *testing.T) {
		f.clock.Advance(6 * time.Minute)
		res, _ := f.send(t, activity.NewEvent("typing"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
	})

	t.Run("the next message after the deadline ends with nil", func(t *testing.T) {
		res, _ := f.send(t, activity.NewMessage("123456"))
		require.Equal(t, dialog.StatusComplete, res.Status)
		assert.Nil(t, res.Result, "a late code is not accepted")
	})
}

func TestOAuthPrompt_RetryPrompt(t *testing.T) {
	f := newOAuthFixture(nil, auth.FlowSettings{})

	f.begin(t, "login", askOptions("", "please finish signing in first"), activity.NewMessage("show repos"))

	res, sender := f.send(t, activity.NewMessage("but I want my repos"))
	assert.Equal(t, dialog.StatusWaiting, res.Status)
	assert.Equal(t, []string{"please finish signing in first"}, sender.texts())
}

func TestOAuthPrompt_EndOnInvalidMessage(t *testing.T) {
	f := newOAuthFixture(func(p *prompt.OAuth) *prompt.OAuth {
		return p.WithEndOnInvalidMessage()
	}, auth.FlowSettings{})

	f.begin(t, "login", nil, activity.NewMessage("show repos"))

	res, _ := f.send(t, activity.NewMessage("forget it"))
	require.Equal(t, dialog.StatusComplete, res.Status)
	assert.Nil(t, res.Result)
}

func TestOAuthPrompt_Validator(t *testing.T) {
	var attempts []int
	requireToken := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
		attempts = append(attempts, vc.Attempts)
		return vc.Recognized.Succeeded, nil
	}
	f := newOAuthFixture(func(p *prompt.OAuth) *prompt.OAuth {
		return p.WithValidator(requireToken)
	}, auth.FlowSettings{})
	f.svc.GateToken("github", "user-1", "tok-new", "123456")

	f.begin(t, "login", nil, activity.NewMessage("show repos"))

	res, _ := f.send(t, activity.NewMessage("111111"))
	assert.Equal(t, dialog.StatusWaiting, res.Status, "a wrong code is judged and rejected")

	res, _ = f.send(t, activity.NewMessage("123456"))
	require.Equal(t, dialog.StatusComplete, res.Status)
	assert.Equal(t, []int{1, 2}, attempts)
}
