package chat

import "time"

// Sender distinguishes who authored a message.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is one persisted turn of a conversation. Immutable once saved.
type Message struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	UserID    string    `json:"userId" bson:"userId"`
	Text      string    `json:"text" bson:"text"`
	Sender    string    `json:"sender" bson:"sender"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// History is the payload returned by the history endpoint.
type History struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
