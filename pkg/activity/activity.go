package activity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies an activity on the wire.
type Type string

const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeInvoke             Type = "invoke"
	TypeInvokeResponse     Type = "invokeResponse"
	TypeConversationUpdate Type = "conversationUpdate"
)

// InputHint tells the channel whether the sender expects an answer.
type InputHint string

const (
	InputExpecting InputHint = "expectingInput"
	InputAccepting InputHint = "acceptingInput"
	InputIgnoring  InputHint = "ignoringInput"
)

// ChannelAccount identifies a user or an agent on a channel.
type ChannelAccount struct {
	ID   string `json:"id,omitempty" mapstructure:"id"`
	Name string `json:"name,omitempty" mapstructure:"name"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID   string `json:"id,omitempty" mapstructure:"id"`
	Name string `json:"name,omitempty" mapstructure:"name"`
}

// Attachment is a typed payload carried alongside the activity text.
// Content stays loosely typed; senders put structs in, receivers decode maps.
type Attachment struct {
	ContentType string `json:"contentType,omitempty" mapstructure:"contentType"`
	Content     any    `json:"content,omitempty" mapstructure:"content"`
}

// Activity is one conversational item. Only the fields the engine consumes or
// produces are modeled; unknown wire fields are dropped at the transport edge.
type Activity struct {
	Type         Type                 `json:"type" mapstructure:"type"`
	ID           string               `json:"id,omitempty" mapstructure:"id"`
	ChannelID    string               `json:"channelId,omitempty" mapstructure:"channelId"`
	ServiceURL   string               `json:"serviceUrl,omitempty" mapstructure:"serviceUrl"`
	Conversation *ConversationAccount `json:"conversation,omitempty" mapstructure:"conversation"`
	From         *ChannelAccount      `json:"from,omitempty" mapstructure:"from"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty" mapstructure:"recipient"`
	ReplyToID    string               `json:"replyToId,omitempty" mapstructure:"replyToId"`

	Text      string    `json:"text,omitempty" mapstructure:"text"`
	Locale    string    `json:"locale,omitempty" mapstructure:"locale"`
	InputHint InputHint `json:"inputHint,omitempty" mapstructure:"inputHint"`

	// Name carries the event or invoke name for non-message activities.
	Name  string `json:"name,omitempty" mapstructure:"name"`
	Value any    `json:"value,omitempty" mapstructure:"value"`

	Attachments []Attachment `json:"attachments,omitempty" mapstructure:"attachments"`
	Timestamp   time.Time    `json:"timestamp,omitzero" mapstructure:"timestamp"`
}

// ResourceResponse is the channel's acknowledgment of a sent activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// InvokeResponse is the body of a TypeInvokeResponse activity.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// NewID returns a fresh activity identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage builds an outbound message activity.
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewEvent builds an outbound event activity.
func NewEvent(name string) *Activity {
	return &Activity{Type: TypeEvent, Name: name}
}

// NewInvokeResponse builds the reply to an invoke activity. Transports treat
// it as out-of-band: it answers the invoke itself rather than the user.
func NewInvokeResponse(status int, body any) *Activity {
	return &Activity{
		Type:  TypeInvokeResponse,
		Value: &InvokeResponse{Status: status, Body: body},
	}
}

// IsMessage reports whether the activity is a user-visible message.
func (a *Activity) IsMessage() bool {
	return a != nil && a.Type == TypeMessage
}

// IsEventNamed reports whether the activity is an event with the given name.
func (a *Activity) IsEventNamed(name string) bool {
	return a != nil && a.Type == TypeEvent && a.Name == name
}

// IsInvokeNamed reports whether the activity is an invoke with the given name.
func (a *Activity) IsInvokeNamed(name string) bool {
	return a != nil && a.Type == TypeInvoke && a.Name == name
}

// TrimmedText returns the message text without surrounding whitespace.
func (a *Activity) TrimmedText() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.Text)
}

// ConversationID returns the conversation id, or "" when unaddressed.
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// FromID returns the sender account id, or "" when absent.
func (a *Activity) FromID() string {
	if a == nil || a.From == nil {
		return ""
	}
	return a.From.ID
}

// Clone returns a shallow copy with the account pointers duplicated, so the
// copy can be re-addressed without touching the original.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	out := *a
	if a.Conversation != nil {
		conv := *a.Conversation
		out.Conversation = &conv
	}
	if a.From != nil {
		from := *a.From
		out.From = &from
	}
	if a.Recipient != nil {
		rcpt := *a.Recipient
		out.Recipient = &rcpt
	}
	if a.Attachments != nil {
		out.Attachments = append([]Attachment(nil), a.Attachments...)
	}
	return &out
}
