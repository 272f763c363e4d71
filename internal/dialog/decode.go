package dialog

import (
	"encoding/json"
	"fmt"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// DecodeIncoming parses one incoming-queue payload.
func DecodeIncoming(payload []byte) (domain.IncomingMessage, error) {
	var msg domain.IncomingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.IncomingMessage{}, fmt.Errorf("unmarshal incoming message: %w", err)
	}
	return msg, nil
}
