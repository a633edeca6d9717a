package models

// PartKind says how a MIME part participates in the final post body.
type PartKind string

const (
	PartBody       PartKind = "body"       // text content, accumulated in order
	PartAttachment PartKind = "attachment" // stored, linked at the end of the body
	PartInline     PartKind = "inline"     // stored, linked at its original position
)

// Part is one decoded MIME part of an inbound message.
type Part struct {
	Kind        PartKind
	Filename    string
	ContentType string
	Data        []byte
}

// IncomingMessage is one inbound email. It lives only for the duration of
// processing and is never persisted.
type IncomingMessage struct {
	UID         uint32
	FromAddress string
	ToAddress   string
	Subject     string
	Parts       []Part
}

// StoredFile is the handle of an attachment written to file storage.
type StoredFile struct {
	Name string
	URL  string
}

// ParsedContent is the cleaned result of processing one message's parts.
// Signature is nil when there was no reply-code context or the code was not
// found in the mail; otherwise it holds the extracted signature text or the
// stripper's empty-signature sentinel, never "".
type ParsedContent struct {
	Body        string
	Attachments []StoredFile
	Signature   *string
}
