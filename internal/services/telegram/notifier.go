package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
)

const (
	notifierQueueSize = 256
	notifierWorkers   = 2
	notifierSendCap   = 45 * time.Second
)

// Notifier sends chat notifications from a small background pool so
// callers (webhook handlers, the worker) never block on the Bot API.
// Enqueue is non-blocking; when the buffer is full the notification is
// dropped and logged, never the request.
type Notifier struct {
	client  *Client
	baseURL string
	tasks   chan notifyTask
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	logger  arbor.ILogger
}

type notifyTask struct {
	chatID    int64
	text      string
	parseMode ParseMode
}

// NewNotifier creates a notifier that prefixes preview paths with baseURL
func NewNotifier(client *Client, baseURL string, logger arbor.ILogger) *Notifier {
	return &Notifier{
		client:  client,
		baseURL: baseURL,
		tasks:   make(chan notifyTask, notifierQueueSize),
		logger:  logger,
	}
}

// Start launches the send workers
func (n *Notifier) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	for i := 0; i < notifierWorkers; i++ {
		n.wg.Add(1)
		common.SafeGo(n.logger, fmt.Sprintf("notifier-%d", i), func() {
			defer n.wg.Done()
			n.run(ctx)
		})
	}
}

// Stop drains queued notifications and waits for the workers.
// Sends after Stop are dropped, not panicked.
func (n *Notifier) Stop() {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.tasks)
		n.mu.Unlock()

		n.wg.Wait()
		if n.cancel != nil {
			n.cancel()
		}
	})
}

func (n *Notifier) run(ctx context.Context) {
	for task := range n.tasks {
		sendCtx, cancel := context.WithTimeout(ctx, notifierSendCap)
		if err := n.client.SendMessage(sendCtx, task.chatID, task.text, task.parseMode); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", task.chatID).Msg("Notification send failed")
		}
		cancel()
	}
}

func (n *Notifier) enqueue(task notifyTask) {
	// The read lock holds off channel close; the non-blocking send keeps
	// the critical section bounded
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn().Int64("chat_id", task.chatID).Msg("Notifier stopped, dropping message")
		return
	}
	select {
	case n.tasks <- task:
	default:
		n.logger.Warn().Int64("chat_id", task.chatID).Msg("Notification queue full, dropping message")
	}
}

// Send queues an arbitrary message
func (n *Notifier) Send(chatID int64, text string, parseMode ParseMode) {
	n.enqueue(notifyTask{chatID: chatID, text: text, parseMode: parseMode})
}

// NotifyStarted queues the "working on it" acknowledgement
func (n *Notifier) NotifyStarted(chatID int64) {
	n.enqueue(notifyTask{chatID: chatID, text: WorkingMessage})
}

// NotifyCompleted queues the preview link for a finished job
func (n *Notifier) NotifyCompleted(chatID int64, previewURL string) {
	fullURL := previewURL
	if n.baseURL != "" {
		fullURL = n.baseURL + previewURL
	}
	n.enqueue(notifyTask{
		chatID:    chatID,
		text:      fmt.Sprintf("✅ Your page is ready!\n\n🔗 Preview: %s", fullURL),
		parseMode: ParseModeHTML,
	})
}

// NotifyFailed queues a failure notice with a bounded error excerpt
func (n *Notifier) NotifyFailed(chatID int64, errorMessage string) {
	text := "❌ Sorry, I couldn't generate your page."
	if errorMessage != "" {
		if len(errorMessage) > 200 {
			errorMessage = errorMessage[:200]
		}
		text += "\n\nError: " + errorMessage
	}
	text += "\n\nPlease try again with a different prompt."
	n.enqueue(notifyTask{chatID: chatID, text: text})
}
