package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// InboundMessage is a single email pulled from an ingestion source.
type InboundMessage struct {
	MessageID  string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Fingerprint derives the stable deduplication key for the message. The
// provider message id wins when present; otherwise sender, subject and
// receive time identify the message.
func (m InboundMessage) Fingerprint() string {
	if strings.TrimSpace(m.MessageID) != "" {
		return hashHex(m.MessageID)
	}
	return hashHex(fmt.Sprintf("%s|%s|%d", m.Sender, m.Subject, m.ReceivedAt.UTC().Unix()))
}

func hashHex(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
