package natsclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
)

// DefaultSubject is the subject prefix used when none is configured
const DefaultSubject = "switchboard.changes"

// ChangeFeed publishes every registry change as a JSON message on
// <subject>.<node>, or <subject>._<kind> for registry-wide changes.
type ChangeFeed struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

var _ gateway.ChangeNotifier = (*ChangeFeed)(nil)

// NewChangeFeed builds a feed over pub. An empty subject selects DefaultSubject.
func NewChangeFeed(pub Publisher, subject string, logger *slog.Logger) *ChangeFeed {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default().With("component", "change-feed")
	}
	return &ChangeFeed{pub: pub, subject: strings.TrimSuffix(subject, "."), logger: logger}
}

// Subject returns the subject a change is published on.
func (f *ChangeFeed) Subject(change gateway.Change) string {
	return f.subject + "." + subjectToken(change.Subject())
}

// NotifyChange implements gateway.ChangeNotifier.
func (f *ChangeFeed) NotifyChange(ctx context.Context, change gateway.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return errors.WrapInvalid(err, "ChangeFeed", "NotifyChange", "encode change")
	}

	subject := f.Subject(change)
	if err := f.pub.Publish(ctx, subject, data); err != nil {
		return errors.Wrap(err, "ChangeFeed", "NotifyChange", "publish change")
	}
	f.logger.Debug("Change published", "subject", subject, "event_id", change.EventID, "size", len(data))
	return nil
}

// subjectToken makes an identifier safe to use as a single subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}
