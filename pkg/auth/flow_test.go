package auth_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/auth"
	"github.com/aretw0/arbor/pkg/auth/authtest"
	"github.com/aretw0/arbor/pkg/turn"
)

// captureSender records outbound activities instead of delivering them.
type captureSender struct {
	sent []*activity.Activity
}

func (s *captureSender) Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	s.sent = append(s.sent, a)
	return &activity.ResourceResponse{ID: fmt.Sprintf("r%d", len(s.sent))}, nil
}

func address(a *activity.Activity) *activity.Activity {
	a.ChannelID = "test"
	a.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	a.From = &activity.ChannelAccount{ID: "user-1"}
	a.Recipient = &activity.ChannelAccount{ID: "bot"}
	return a
}

func messageTurn(text string) (*turn.Context, *captureSender) {
	sender := &captureSender{}
	return turn.New(sender, address(activity.NewMessage(text))), sender
}

func eventTurn(name string, value any) (*turn.Context, *captureSender) {
	sender := &captureSender{}
	inbound := address(activity.NewEvent(name))
	inbound.Value = value
	return turn.New(sender, inbound), sender
}

func invokeTurn(name string, value any) (*turn.Context, *captureSender) {
	sender := &captureSender{}
	inbound := address(&activity.Activity{Type: activity.TypeInvoke, Name: name})
	inbound.Value = value
	return turn.New(sender, inbound), sender
}

// invokeResponseOf digs the last sent invoke response out of the sender.
func invokeResponseOf(t *testing.T, sender *captureSender) *activity.InvokeResponse {
	t.Helper()
	require.NotEmpty(t, sender.sent)
	last := sender.sent[len(sender.sent)-1]
	require.Equal(t, activity.TypeInvokeResponse, last.Type)
	ir, ok := last.Value.(*activity.InvokeResponse)
	require.True(t, ok, "invoke response value should be *activity.InvokeResponse")
	return ir
}

func countCalls(calls []string, op string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, op) {
			n++
		}
	}
	return n
}

func TestFlow_SendCard(t *testing.T) {
	svc := authtest.NewFakeTokenService()
	svc.ExchangeID = "exchange-github"
	flow := auth.NewFlow(auth.FlowSettings{Connection: "github", Title: "Connect GitHub", Text: "Please sign in"}, svc)

	tc, sender := messageTurn("show my repos")
	require.NoError(t, flow.SendCard(context.Background(), tc))

	require.Len(t, sender.sent, 1)
	card := sender.sent[0]
	assert.Equal(t, activity.InputAccepting, card.InputHint)
	require.Len(t, card.Attachments, 1)
	att := card.Attachments[0]
	assert.Equal(t, auth.OAuthCardContentType, att.ContentType)

	content, ok := att.Content.(auth.OAuthCard)
	require.True(t, ok)
	assert.Equal(t, "github", content.ConnectionName)
	assert.Equal(t, "Please sign in", content.Text)
	require.Len(t, content.Buttons, 1)
	assert.Equal(t, auth.ActionSignIn, content.Buttons[0].Type)
	assert.Equal(t, "Connect GitHub", content.Buttons[0].Title)
	assert.Equal(t, svc.SignInLink, content.Buttons[0].Value)
	require.NotNil(t, content.TokenExchangeResource)
	assert.Equal(t, "exchange-github", content.TokenExchangeResource.ID)
}

func TestFlow_Token(t *testing.T) {
	svc := authtest.NewFakeTokenService()
	flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
	tc, _ := messageTurn("hi")

	token, err := flow.Token(context.Background(), tc, "")
	require.NoError(t, err)
	assert.Nil(t, token, "missing token is a state, not an error")

	svc.SetToken("github", "user-1", "tok-1")
	token, err = flow.Token(context.Background(), tc, "")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "tok-1", token.Token)
	assert.Equal(t, "github", token.ConnectionName)
}

func TestFlow_Recognize(t *testing.T) {
	ctx := context.Background()

	t.Run("ignores unrelated messages", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := messageTurn("what's the weather")

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)
		assert.Empty(t, sender.sent)
		assert.Empty(t, svc.Calls, "non-completions never hit the service")
	})

	t.Run("token response event", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, _ := eventTurn(auth.EventTokenResponse, map[string]any{
			"token":          "tok-evt",
			"connectionName": "github",
		})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		require.True(t, recog.Succeeded)
		assert.Equal(t, "tok-evt", recog.Token.Token)
	})

	t.Run("token response event without token keeps waiting", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, _ := eventTurn(auth.EventTokenResponse, map[string]any{"connectionName": "github"})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)
	})

	t.Run("verify state invoke", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		svc.GateToken("github", "user-1", "tok-verified", "123456")
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := invokeTurn(auth.InvokeVerifyState, map[string]any{"state": "123456"})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		require.True(t, recog.Succeeded)
		assert.Equal(t, "tok-verified", recog.Token.Token)
		assert.Equal(t, 200, invokeResponseOf(t, sender).Status)
	})

	t.Run("verify state with wrong code answers 404", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		svc.GateToken("github", "user-1", "tok-verified", "123456")
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := invokeTurn(auth.InvokeVerifyState, map[string]any{"state": "999999"})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)
		assert.Equal(t, 404, invokeResponseOf(t, sender).Status)
	})

	t.Run("token exchange invoke", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		svc.AllowExchange("github", "user-1", "sso-assertion", "tok-sso")
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := invokeTurn(auth.InvokeTokenExchange, map[string]any{
			"id":             "ex-1",
			"connectionName": "github",
			"token":          "sso-assertion",
		})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		require.True(t, recog.Succeeded)
		assert.Equal(t, "tok-sso", recog.Token.Token)

		ir := invokeResponseOf(t, sender)
		assert.Equal(t, 200, ir.Status)
		body, ok := ir.Body.(*auth.TokenExchangeInvokeResponse)
		require.True(t, ok)
		assert.Equal(t, "ex-1", body.ID)
		assert.Equal(t, "github", body.ConnectionName)
		assert.Empty(t, body.FailureDetail)
	})

	t.Run("token exchange for another connection answers 400", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := invokeTurn(auth.InvokeTokenExchange, map[string]any{
			"id":             "ex-2",
			"connectionName": "azure",
			"token":          "sso-assertion",
		})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)

		ir := invokeResponseOf(t, sender)
		assert.Equal(t, 400, ir.Status)
		body, ok := ir.Body.(*auth.TokenExchangeInvokeResponse)
		require.True(t, ok)
		assert.NotEmpty(t, body.FailureDetail)
		assert.Equal(t, 0, countCalls(svc.Calls, "ExchangeToken"))
	})

	t.Run("failed exchange answers 412", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, sender := invokeTurn(auth.InvokeTokenExchange, map[string]any{
			"id":             "ex-3",
			"connectionName": "github",
			"token":          "unscripted",
		})

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)

		ir := invokeResponseOf(t, sender)
		assert.Equal(t, 412, ir.Status)
		body, ok := ir.Body.(*auth.TokenExchangeInvokeResponse)
		require.True(t, ok)
		assert.NotEmpty(t, body.FailureDetail)
	})

	t.Run("duplicate exchange id is silently ignored", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		svc.AllowExchange("github", "user-1", "sso-assertion", "tok-sso")
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)

		payload := map[string]any{
			"id":             "ex-dup",
			"connectionName": "github",
			"token":          "sso-assertion",
		}
		tc, _ := invokeTurn(auth.InvokeTokenExchange, payload)
		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		require.True(t, recog.Succeeded)

		tc2, sender2 := invokeTurn(auth.InvokeTokenExchange, payload)
		recog, err = flow.Recognize(ctx, tc2)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)
		assert.Empty(t, sender2.sent, "the repeat gets no invoke response")
		assert.Equal(t, 1, countCalls(svc.Calls, "ExchangeToken"))
	})

	t.Run("magic code inside a message", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		svc.GateToken("github", "user-1", "tok-code", "654321")
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, _ := messageTurn("here you go: 654321 thanks")

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		require.True(t, recog.Succeeded)
		assert.Equal(t, "tok-code", recog.Token.Token)
	})

	t.Run("longer digit runs are not codes", func(t *testing.T) {
		svc := authtest.NewFakeTokenService()
		flow := auth.NewFlow(auth.FlowSettings{Connection: "github"}, svc)
		tc, _ := messageTurn("my order number is 12345678")

		recog, err := flow.Recognize(ctx, tc)
		require.NoError(t, err)
		assert.False(t, recog.Succeeded)
		assert.Empty(t, svc.Calls)
	})
}
