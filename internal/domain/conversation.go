package domain

// Origin marks who authored a message in a chat thread. The chat adapter sets
// it explicitly; nothing downstream infers authorship from other fields.
type Origin string

const (
	OriginHuman Origin = "human"
	OriginBot   Origin = "bot"
)

// ConversationTurn is one historical thread message in chronological order.
type ConversationTurn struct {
	Origin    Origin
	Text      string
	Timestamp string
	Files     []FileRef
}

// Role maps the turn's authorship onto the prompt role.
func (t ConversationTurn) Role() Role {
	if t.Origin == OriginBot {
		return RoleAssistant
	}
	return RoleUser
}

// FileRef is a reference to a file attached to a chat message.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mimetype string `json:"mimetype"`
	Filetype string `json:"filetype"`
}

// MentionEvent is one inbound bot mention, already parsed by the webhook
// adapter. ThreadID is the root timestamp of the thread the reply belongs to.
type MentionEvent struct {
	EventID   string
	UserID    string
	ChannelID string
	ThreadID  string
	MessageTS string
	Text      string
	Files     []FileRef
}

// PageContent is the readable part of a fetched web page.
type PageContent struct {
	Title string
	Body  string
}
