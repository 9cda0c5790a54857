package messaging

import (
	"context"
	"fmt"

	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

type smsSender interface {
	Send(ctx context.Context, to, body string) error
}

// OperatorNotifier texts the shop when a lead signals they are ready to
// book. Operator and owner can be different numbers; either may be empty.
type OperatorNotifier struct {
	sender   smsSender
	operator string
	owner    string
	logger   *logging.Logger
}

func NewOperatorNotifier(sender smsSender, operatorPhone, ownerPhone string, logger *logging.Logger) *OperatorNotifier {
	if sender == nil {
		panic("messaging: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorNotifier{
		sender:   sender,
		operator: operatorPhone,
		owner:    ownerPhone,
		logger:   logger,
	}
}

// NotifyReadyToBook sends the ready-to-book alert. Failures are logged per
// recipient; the first error is returned so callers can count it, but a
// failed alert never blocks the customer pipeline.
func (n *OperatorNotifier) NotifyReadyToBook(ctx context.Context, customerPhone, notes string) error {
	body := fmt.Sprintf("Lead ready to book: %s", customerPhone)
	if notes != "" {
		body += "\n" + notes
	}

	var firstErr error
	for _, to := range n.recipients() {
		if err := n.sender.Send(ctx, to, body); err != nil {
			n.logger.Error("ready-to-book alert failed", "to", to, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n.logger.Info("ready-to-book alert sent", "to", to, "customer", customerPhone)
	}
	return firstErr
}

func (n *OperatorNotifier) recipients() []string {
	var out []string
	if n.operator != "" {
		out = append(out, n.operator)
	}
	if n.owner != "" && n.owner != n.operator {
		out = append(out, n.owner)
	}
	return out
}
