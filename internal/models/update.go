// -----------------------------------------------------------------------
// Telegram Update - Minimal inbound webhook payload shape
// -----------------------------------------------------------------------

package models

// TelegramUpdate is the minimal event shape accepted by the webhook.
// Everything else in the Bot API payload is ignored.
type TelegramUpdate struct {
	UpdateID int64            `json:"update_id" validate:"required"`
	Message  *TelegramMessage `json:"message"`
}

// TelegramMessage carries the chat, sender and text of an update
type TelegramMessage struct {
	Chat *TelegramChat `json:"chat" validate:"required"`
	From *TelegramUser `json:"from"`
	Text string        `json:"text"`
}

type TelegramChat struct {
	ID int64 `json:"id" validate:"required"`
}

type TelegramUser struct {
	ID int64 `json:"id"`
}

// ChatID returns the chat id or 0 when the update carries no message
func (u *TelegramUpdate) ChatID() int64 {
	if u.Message == nil || u.Message.Chat == nil {
		return 0
	}
	return u.Message.Chat.ID
}

// UserID returns the sender id or 0 when absent
func (u *TelegramUpdate) UserID() int64 {
	if u.Message == nil || u.Message.From == nil {
		return 0
	}
	return u.Message.From.ID
}

// Text returns the message text or "" when the update carries no message
func (u *TelegramUpdate) Text() string {
	if u.Message == nil {
		return ""
	}
	return u.Message.Text
}

// WebhookResponse is the JSON body returned by the webhook endpoint
type WebhookResponse struct {
	OK      bool   `json:"ok"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}
