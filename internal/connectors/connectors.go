package connectors

import (
	"context"

	"nfce/internal"
)

// MailConnector lists recent messages of a mailbox label with their raw body.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
