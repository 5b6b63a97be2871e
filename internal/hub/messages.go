package hub

import (
	"encoding/json"

	"github.com/sendmedown/bio-quantum-platform/internal/models"
)

// Message types on the live connection.
const (
	TypeAuth                  = "auth"
	TypeShare                 = "share"
	TypeShareFile             = "share_file" // older clients
	TypePing                  = "ping"
	TypeConnectionEstablished = "connection_established"
	TypeNuggetUpdate          = "nugget_update"
	TypeShareAck              = "share_ack"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// Error codes sent in error notices.
const (
	CodeInvalidCredential = "InvalidCredential"
	CodeMissingField      = "MissingField"
	CodeMalformedMessage  = "MalformedMessage"
	CodeRateLimited       = "RateLimited"
	CodeSessionFull       = "SessionFull"
	CodeUnavailable       = "Unavailable"
)

// Inbound is any frame a client may send.
type Inbound struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind,omitempty"`
	URL       string `json:"url,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileType  string `json:"fileType,omitempty"`
}

// Notice is every server frame except codon updates.
type Notice struct {
	Type         string `json:"type"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	ID           string `json:"id,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// Update is the push sent to a session when one of its codons changes. The
// codon's fields are inlined; its own type moves to nuggetType so it does
// not collide with the message type.
type Update struct {
	Type       string `json:"type"`
	NuggetType string `json:"nuggetType"`
	models.Codon
	RequestID string `json:"requestId"`
}

// EncodeUpdate builds the nugget_update payload for a committed codon.
func EncodeUpdate(c models.Codon, requestID string) ([]byte, error) {
	return json.Marshal(Update{
		Type:       TypeNuggetUpdate,
		NuggetType: c.Type,
		Codon:      c,
		RequestID:  requestID,
	})
}

func errorNotice(code, msg, requestID string) Notice {
	return Notice{Type: TypeError, Code: code, Error: msg, RequestID: requestID}
}
