package alert

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers scrape summaries and anomaly alerts to a Telegram chat.
// A nil Notifier is valid and drops everything, so alerting stays optional.
type Notifier struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewNotifier creates a Notifier for the given bot token and chat. An empty
// token returns nil, which disables alerting.
func NewNotifier(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Notifier{api: api, chatID: chatID, log: log}, nil
}

// SessionSummary reports how a scrape run went.
func (n *Notifier) SessionSummary(sess *model.ScrapeSession) {
	if n == nil {
		return
	}
	var b strings.Builder
	if sess.Status == model.SessionFailed {
		fmt.Fprintf(&b, "Scrape run %s FAILED\n%s\n", sess.ID, sess.ErrorMessage)
	} else {
		fmt.Fprintf(&b, "Scrape run %s completed\n", sess.ID)
	}
	fmt.Fprintf(&b, "Threads: %d\nEntries seen: %d\nNew: %d\nUpdated: %d",
		sess.TotalThreads, sess.TotalEntries, sess.NewEntries, sess.UpdatedEntries)
	n.send(b.String())
}

// Anomalies reports suspicious disclosures, capped to keep messages readable.
func (n *Notifier) Anomalies(anomalies []Anomaly) {
	if n == nil || len(anomalies) == 0 {
		return
	}
	const maxListed = 10

	var b strings.Builder
	fmt.Fprintf(&b, "%d abnormal disclosures detected:\n", len(anomalies))
	for i, a := range anomalies {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more", len(anomalies)-maxListed)
			break
		}
		fmt.Fprintf(&b, "- %s @ %s: %s\n", a.Entry.Username, a.Entry.Resort, a.Reason)
	}
	n.send(b.String())
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send telegram message", "error", err)
	}
}
