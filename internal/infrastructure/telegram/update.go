package telegram

import "strings"

// SecretTokenHeader carries the webhook secret Telegram echoes back on
// every delivery, as configured via setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Update is the inbound webhook payload from the Bot API. Only the
// fields the bridge reads are mapped; everything else is ignored.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

// IncomingMessage is the subset of the Bot API message object the
// bridge cares about.
type IncomingMessage struct {
	MessageID       int64       `json:"message_id"`
	From            *User       `json:"from"`
	Chat            Chat        `json:"chat"`
	MessageThreadID *int64      `json:"message_thread_id"`
	Date            int64       `json:"date"`
	Text            string      `json:"text"`
	Caption         string      `json:"caption"`
	Photo           []PhotoSize `json:"photo"`
}

// TextContent returns the message text, falling back to the photo
// caption for media messages.
func (m *IncomingMessage) TextContent() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// LargestPhoto returns the highest resolution variant of the attached
// photo, or nil when the message carries no photo. Telegram sends
// several downscaled variants per photo and does not guarantee order.
func (m *IncomingMessage) LargestPhoto() *PhotoSize {
	var best *PhotoSize
	for i := range m.Photo {
		p := &m.Photo[i]
		if best == nil || p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

// User identifies the Telegram account that authored a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName builds the best human readable label for the user.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Support"
}

// Chat identifies the chat a message was posted in.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// PhotoSize is one resolution variant of an attached photo.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size"`
}
