package channel

import "time"

// InboundMessage is one inbound chat message with its extracted text.
type InboundMessage struct {
	From      string
	PushName  string
	Text      string
	NetworkID string
	Timestamp time.Time
}

// gatewayFrame is the wire envelope exchanged with the chat gateway.
type gatewayFrame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	From      string          `json:"from,omitempty"`
	PushName  string          `json:"pushName,omitempty"`
	To        string          `json:"to,omitempty"`
	Text      string          `json:"text,omitempty"`
	Number    string          `json:"number,omitempty"`
	Code      string          `json:"code,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Message   *messagePayload `json:"message,omitempty"`
}

// Frame types.
const (
	frameMessage        = "message"
	frameDecryptFailed  = "decrypt_failed"
	framePairingCode    = "pairing_code"
	frameSend           = "send"
	frameRequestPairing = "request_pairing_code"
)

// messagePayload mirrors the gateway's message shapes. Only one branch is
// populated per message.
type messagePayload struct {
	Conversation string         `json:"conversation,omitempty"`
	ExtendedText *extendedText  `json:"extendedTextMessage,omitempty"`
	ButtonReply  *buttonReply   `json:"buttonsResponseMessage,omitempty"`
	ListReply    *listReply     `json:"listResponseMessage,omitempty"`
	Image        *mediaPayload  `json:"imageMessage,omitempty"`
	Video        *mediaPayload  `json:"videoMessage,omitempty"`
	Document     *mediaPayload  `json:"documentMessage,omitempty"`
}

type extendedText struct {
	Text string `json:"text"`
}

type buttonReply struct {
	SelectedButtonID string `json:"selectedButtonId"`
}

type listReply struct {
	SingleSelectReply struct {
		SelectedRowID string `json:"selectedRowId"`
	} `json:"singleSelectReply"`
}

type mediaPayload struct {
	Caption string `json:"caption,omitempty"`
}

// extractText pulls the usable text out of whatever payload shape arrived.
// Messages with no extractable text are discarded by the caller.
func extractText(p *messagePayload) string {
	if p == nil {
		return ""
	}
	switch {
	case p.Conversation != "":
		return p.Conversation
	case p.ExtendedText != nil && p.ExtendedText.Text != "":
		return p.ExtendedText.Text
	case p.ButtonReply != nil && p.ButtonReply.SelectedButtonID != "":
		return p.ButtonReply.SelectedButtonID
	case p.ListReply != nil && p.ListReply.SingleSelectReply.SelectedRowID != "":
		return p.ListReply.SingleSelectReply.SelectedRowID
	case p.Image != nil && p.Image.Caption != "":
		return p.Image.Caption
	case p.Video != nil && p.Video.Caption != "":
		return p.Video.Caption
	case p.Document != nil && p.Document.Caption != "":
		return p.Document.Caption
	}
	return ""
}
