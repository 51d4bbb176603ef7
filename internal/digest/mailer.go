package digest

import (
	"context"
	"log"
)

// Mailer delivers one owner's consolidated digest. Template rendering and
// SMTP are handled by the external delivery pipeline; implementations here
// only hand the digest over.
type Mailer interface {
	SendDigest(ctx context.Context, d Digest) error
}

// LogMailer is the default Mailer when no delivery pipeline is attached:
// it logs what would have been sent. Useful in development and as the
// safety net in deployments where delivery runs elsewhere.
type LogMailer struct{}

// SendDigest implements Mailer.
func (LogMailer) SendDigest(_ context.Context, d Digest) error {
	log.Printf("[digest] Owner %s: %d new market(s) across %d alert(s)",
		d.OwnerID, len(d.Detections), d.AlertsTriggered)
	return nil
}
