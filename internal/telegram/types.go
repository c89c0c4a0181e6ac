// Package telegram is the chat transport: inbound update types, an
// outbound sender and the background processor that answers updates.
package telegram

// Update is the subset of a Telegram update the agent reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Actionable reports whether u carries a text message with a chat to answer.
func (u Update) Actionable() bool {
	return u.Message != nil && u.Message.Chat != nil && u.Message.Chat.ID != 0 && u.Message.Text != ""
}

// SenderName returns the sender's first name, or "" when unknown.
func (u Update) SenderName() string {
	if u.Message == nil || u.Message.From == nil {
		return ""
	}
	return u.Message.From.FirstName
}
