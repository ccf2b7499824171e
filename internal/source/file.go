package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/domain"
)

// FileSource reads demo messages from a pipe-delimited text file. Each
// non-empty line is one message in the form sender|subject|body; missing
// fields fall back to placeholders so a malformed line still yields a
// message. The raw line doubles as the message id, which keeps the
// fingerprint stable across repeated polls of the same file.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource constructs the source.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Name identifies the source in reports and logs.
func (s *FileSource) Name() string { return "file" }

// Fetch reads every message line. A missing file yields an empty batch so
// an idle demo deployment keeps polling quietly.
func (s *FileSource) Fetch(ctx context.Context) ([]domain.InboundMessage, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer file.Close()

	now := time.Now().UTC()
	var messages []domain.InboundMessage
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		messages = append(messages, parseLine(line, now))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	s.logger.Debug("file source fetched", zap.String("path", s.path), zap.Int("messages", len(messages)))
	return messages, nil
}

func parseLine(line string, receivedAt time.Time) domain.InboundMessage {
	parts := strings.SplitN(line, "|", 3)
	msg := domain.InboundMessage{
		MessageID:  line,
		Sender:     "unknown@example.com",
		Subject:    "(no subject)",
		ReceivedAt: receivedAt,
	}
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		msg.Sender = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		msg.Subject = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		msg.Body = strings.TrimSpace(parts[2])
	}
	return msg
}
