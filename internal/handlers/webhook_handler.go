// -----------------------------------------------------------------------
// Webhook handler - idempotent chat-transport ingest
// -----------------------------------------------------------------------

package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	playground "github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	"github.com/ternarybob/pagesmith/internal/services/telegram"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody    = 1 << 20 // 1 MiB
)

// WebhookHandler accepts Telegram webhook deliveries, deduplicates them
// and hands accepted prompts to the queue. Replies within the ingress
// deadline: notifications go through the background notifier, never
// inline.
type WebhookHandler struct {
	secretToken string
	events      interfaces.EventStorage
	jobs        interfaces.JobStorage
	queue       interfaces.QueuePublisher
	notifier    *telegram.Notifier
	validate    *playground.Validate
	logger      arbor.ILogger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	secretToken string,
	events interfaces.EventStorage,
	jobs interfaces.JobStorage,
	queue interfaces.QueuePublisher,
	notifier *telegram.Notifier,
	logger arbor.ILogger,
) *WebhookHandler {
	return &WebhookHandler{
		secretToken: secretToken,
		events:      events,
		jobs:        jobs,
		queue:       queue,
		notifier:    notifier,
		validate:    playground.New(),
		logger:      logger,
	}
}

// HandleWebhook handles POST /telegram/webhook.
// Commit-before-publish is the load-bearing ordering here: a worker must
// never dequeue a job id that is not yet in the store.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretTokenHeader)), []byte(h.secretToken)) != 1 {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Webhook secret mismatch")
		WriteError(w, http.StatusUnauthorized, "invalid secret token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var update models.TelegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		WriteError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := h.validate.Struct(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	text := strings.TrimSpace(update.Text())
	if text == "" {
		// Joins, stickers, edits: acknowledged and dropped
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true})
		return
	}

	chatID := update.ChatID()

	switch {
	case text == "/start":
		h.notifier.Send(chatID, telegram.WelcomeMessage, telegram.ParseModeMarkdown)
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true})
		return
	case text == "/help":
		h.notifier.Send(chatID, telegram.HelpMessage, telegram.ParseModeMarkdown)
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true})
		return
	case strings.HasPrefix(text, "/prompt"):
		prompt := strings.TrimSpace(strings.TrimPrefix(text, "/prompt"))
		if prompt == "" {
			h.notifier.Send(chatID, telegram.EmptyPromptMessage, telegram.ParseModeMarkdown)
			WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true, Message: "empty prompt"})
			return
		}
		h.acceptPrompt(w, r, &update, body, prompt)
		return
	default:
		h.notifier.Send(chatID, telegram.InvalidCommandMessage, telegram.ParseModeMarkdown)
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true, Message: "unrecognized command"})
		return
	}
}

// acceptPrompt runs dedupe, job creation and publish for a /prompt update
func (h *WebhookHandler) acceptPrompt(w http.ResponseWriter, r *http.Request, update *models.TelegramUpdate, raw []byte, prompt string) {
	ctx := r.Context()

	event, duplicate, err := h.events.InsertEventOnce(ctx, update.UpdateID, raw)
	if err != nil {
		h.logger.Error().Err(err).Int64("update_id", update.UpdateID).Msg("Failed to record inbound event")
		WriteError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	if duplicate {
		existing, err := h.events.FindJobByExternalEvent(ctx, update.UpdateID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// First delivery crashed between event insert and job create
				WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true, Message: "already received"})
				return
			}
			h.logger.Error().Err(err).Int64("update_id", update.UpdateID).Msg("Failed to look up duplicate event")
			WriteError(w, http.StatusInternalServerError, "failed to resolve duplicate")
			return
		}
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true, JobID: existing.ID, Message: "already processing"})
		return
	}

	job := models.NewJob(event.ID, update.ChatID(), update.UserID(), prompt)
	if err := h.jobs.CreateJob(ctx, job); err != nil {
		h.logger.Error().Err(err).Int64("update_id", update.UpdateID).Msg("Failed to create job")
		WriteError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// The job row is committed; only now may a worker see its id
	if err := h.queue.Publish(ctx, job.ID, 1); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to publish job")
		if mfErr := h.jobs.MarkFailed(ctx, job.ID, "publish failed: "+err.Error()); mfErr != nil {
			h.logger.Error().Err(mfErr).Str("job_id", job.ID).Msg("Failed to mark job failed after publish error")
		}
		h.notifier.Send(update.ChatID(), telegram.QueueErrorMessage, "")
		WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: false, JobID: job.ID, Message: "queue error"})
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Int64("chat_id", update.ChatID()).
		Msg("Job accepted")

	h.notifier.NotifyStarted(update.ChatID())
	WriteJSON(w, http.StatusOK, models.WebhookResponse{OK: true, JobID: job.ID})
}
