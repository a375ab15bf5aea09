// -----------------------------------------------------------------------
// Telegram Bot API client for outbound notifications
// -----------------------------------------------------------------------

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pagesmith/internal/common"
)

// ParseMode selects Telegram message formatting
type ParseMode string

const (
	ParseModeHTML       ParseMode = "HTML"
	ParseModeMarkdown   ParseMode = "Markdown"
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// Telegram rejects messages longer than this
const maxMessageLength = 4096

// Client sends messages through the Bot API. An empty bot token leaves
// the client unconfigured; sends become logged no-ops so the pipeline
// keeps working without credentials.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates a Bot API client with a send rate limiter
func NewClient(cfg *common.TelegramConfig, logger arbor.ILogger) *Client {
	timeout := common.ParseDurationOr(cfg.SendTimeout, 30*time.Second)
	interval := common.ParseDurationOr(cfg.RateLimit, 50*time.Millisecond)

	return &Client{
		baseURL:    "https://api.telegram.org/bot" + cfg.BotToken,
		token:      cfg.BotToken,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     logger,
	}
}

// IsConfigured reports whether a bot token is present
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

type sendMessageRequest struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// SendMessage posts one sendMessage call, rate limited and truncated to
// the Bot API length cap
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, parseMode ParseMode) error {
	if !c.IsConfigured() {
		c.logger.Warn().Int64("chat_id", chatID).Msg("Telegram bot token not configured, skipping message")
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	if len(text) > maxMessageLength {
		text = truncateUTF8(text, maxMessageLength)
	}

	payload := sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: string(parseMode),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Int64("chat_id", chatID).
			Str("response", string(respBody)).
			Msg("Telegram API error")
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !apiResp.OK {
		c.logger.Error().
			Str("error", apiResp.Description).
			Int64("chat_id", chatID).
			Msg("Telegram API returned error")
		return fmt.Errorf("telegram API error: %s", apiResp.Description)
	}

	c.logger.Debug().Int64("chat_id", chatID).Msg("Message sent")
	return nil
}

// truncateUTF8 cuts at the cap without splitting a multi-byte rune
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
