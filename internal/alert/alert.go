// Package alert raises operator notifications for resolution and
// commit failures, at most once per chain and kind until the condition
// clears.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/dedup"
	"github.com/web3-frozen/chainsync/internal/metrics"
)

const telegramAPI = "https://api.telegram.org/bot"

const (
	kindResolveFailed = "resolve_failed"
	kindCommitFailed  = "commit_failed"
)

// Sender delivers one rendered alert message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends alerts to a fixed operator chat.
type Telegram struct {
	token  string
	chatID int64
	api    string
	client *http.Client
}

func NewTelegram(token string, chatID int64) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		api:    telegramAPI,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.api+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Notifier wraps a Sender with redis-backed suppression. A nil sender
// degrades to log-only alerts; a nil deduplicator sends every time.
type Notifier struct {
	sender Sender
	dedup  *dedup.Deduplicator
	logger *slog.Logger
}

func NewNotifier(sender Sender, d *dedup.Deduplicator, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, dedup: d, logger: logger}
}

func (n *Notifier) ResolveFailed(ctx context.Context, name chain.Name, detail string) {
	text := fmt.Sprintf("⚠️ <b>Chain resolution failed</b>\n\nChain: %s\n%s", name, detail)
	n.raise(ctx, kindResolveFailed, name, text)
}

func (n *Notifier) CommitFailed(ctx context.Context, name chain.Name, err error) {
	text := fmt.Sprintf("❌ <b>Sheet commit failed</b>\n\nChain: %s\nError: %v", name, err)
	n.raise(ctx, kindCommitFailed, name, text)
}

// ClearChain re-arms every suppressed alert for name after a clean
// resolve-and-commit.
func (n *Notifier) ClearChain(ctx context.Context, name chain.Name) {
	if n.dedup == nil {
		return
	}
	n.dedup.ClearByPattern(ctx, "alert:*:"+name.String())
}

func (n *Notifier) raise(ctx context.Context, kind string, name chain.Name, text string) {
	key := alertKey(kind, name)
	if n.dedup != nil && n.dedup.AlreadySent(ctx, key) {
		metrics.AlertsDeduplicatedTotal.WithLabelValues(kind).Inc()
		n.logger.Debug("alert suppressed", "kind", kind, "chain", name.String())
		return
	}

	n.logger.Warn("alert raised", "kind", kind, "chain", name.String())
	if n.sender != nil {
		if err := n.sender.Send(ctx, text); err != nil {
			// Not recorded, so delivery is attempted again next time.
			metrics.AlertsFailedTotal.WithLabelValues(kind).Inc()
			n.logger.Error("alert delivery failed", "kind", kind, "error", err)
			return
		}
	}

	metrics.AlertsSentTotal.WithLabelValues(kind).Inc()
	if n.dedup != nil {
		n.dedup.Record(ctx, key)
	}
}

func alertKey(kind string, name chain.Name) string {
	return fmt.Sprintf("alert:%s:%s", kind, name)
}
