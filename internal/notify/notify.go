// Package notify delivers user-visible transaction notifications.
package notify

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityHub/internal/model"
)

// Notification is one fire-and-forget transaction notice.
type Notification struct {
	Kind        model.MutationKind
	Hash        common.Hash
	Label       string
	ExplorerURL string
}

// Sink consumes notifications. Implementations must not block the caller on
// anything slow.
type Sink interface {
	Notify(n Notification)
}

// LogSink writes notifications to the logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(n Notification) {
	s.logger.Info("transaction notification",
		zap.String("kind", string(n.Kind)),
		zap.String("label", n.Label),
		zap.String("hash", n.Hash.Hex()),
		zap.String("explorer", n.ExplorerURL),
	)
}

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) Notify(Notification) {}

// MultiSink fans one notification out to several sinks.
type MultiSink []Sink

func (m MultiSink) Notify(n Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(n)
		}
	}
}
