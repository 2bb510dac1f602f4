package activity

// ConversationReference is the durable address of a point in a conversation.
// It survives persistence and lets the engine send activities later without
// the original inbound activity in hand.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty" mapstructure:"activityId"`
	User         *ChannelAccount      `json:"user,omitempty" mapstructure:"user"`
	Agent        *ChannelAccount      `json:"agent,omitempty" mapstructure:"agent"`
	Conversation *ConversationAccount `json:"conversation,omitempty" mapstructure:"conversation"`
	ChannelID    string               `json:"channelId,omitempty" mapstructure:"channelId"`
	ServiceURL   string               `json:"serviceUrl,omitempty" mapstructure:"serviceUrl"`
}

// Reference extracts the conversation reference from an inbound activity.
// The sender becomes User and the addressee becomes Agent, so replies built
// from the reference address the original sender.
func (a *Activity) Reference() *ConversationReference {
	if a == nil {
		return nil
	}
	ref := &ConversationReference{
		ActivityID: a.ID,
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
	}
	if a.From != nil {
		user := *a.From
		ref.User = &user
	}
	if a.Recipient != nil {
		agent := *a.Recipient
		ref.Agent = &agent
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		ref.Conversation = &conv
	}
	return ref
}

// ApplyReference stamps an outbound activity with a conversation reference.
// When asReply is true the activity is addressed back to the referenced user
// and linked to the referenced activity id. Explicit non-empty fields on the
// activity are never overwritten by empty reference fields.
func ApplyReference(a *Activity, ref *ConversationReference, asReply bool) *Activity {
	if a == nil || ref == nil {
		return a
	}
	if ref.ChannelID != "" {
		a.ChannelID = ref.ChannelID
	}
	if ref.ServiceURL != "" {
		a.ServiceURL = ref.ServiceURL
	}
	if ref.Conversation != nil {
		conv := *ref.Conversation
		a.Conversation = &conv
	}
	if asReply {
		if ref.User != nil {
			user := *ref.User
			a.Recipient = &user
		}
		if ref.Agent != nil {
			agent := *ref.Agent
			a.From = &agent
		}
		if ref.ActivityID != "" {
			a.ReplyToID = ref.ActivityID
		}
	}
	return a
}
