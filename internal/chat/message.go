package chat

// Event names carried in the envelope's "event" field.
const (
	EventJoinRoom   = "join-room"
	EventMessage    = "message"
	EventHistory    = "history"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventExport     = "export"
)

// Message is one chat message as stored in a room's history and relayed to
// members. The timestamp is assigned by the server at receipt, in
// milliseconds since the epoch; clients never set it. Image, when present, is
// an inline base64 data URL. Messages are never mutated after creation.
type Message struct {
	Sender    string `json:"sender"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Image     string `json:"image,omitempty"`
}

// JoinRequest is the client payload for a join-room event. Both fields are
// required; a join with either one empty is rejected and has no observable
// effect.
type JoinRequest struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// PostRequest is the client payload for a message event. Body may be empty
// when an image is attached.
type PostRequest struct {
	Room   string `json:"room" validate:"required"`
	Body   string `json:"message"`
	Sender string `json:"sender" validate:"required"`
	Image  string `json:"image,omitempty"`
}

// ExportPayload carries archive bytes through the duplex channel, which
// cannot stream a raw binary response. Content is the archive base64-encoded
// when Encoding is "base64", or plain text when the build failed and the
// payload carries the error instead.
type ExportPayload struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

// ExportFilename and ExportMimeType describe the archive artifact in both
// delivery modes (HTTP download and in-band export payload).
const (
	ExportFilename = "chats_export.zip"
	ExportMimeType = "application/zip"
)
