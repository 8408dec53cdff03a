package bridge

// MessageEvent is one inbound cross-document message. Origin is the
// sender's scheme://host[:port], Data the raw message body.
type MessageEvent struct {
	Origin string
	Data   []byte
}

type MessageHandler func(MessageEvent)

// Frame is an embedded frame element.
type Frame interface {
	// Src returns the frame's resolved address.
	Src() string
	// PostMessage delivers data to the frame's message channel. Delivery
	// is skipped by the frame when targetOrigin is not "*" and does not
	// match the frame's current origin.
	PostMessage(data []byte, targetOrigin string) error
}

// Document resolves frame elements by identifier.
type Document interface {
	FrameByID(id string) (Frame, bool)
}

// Window is the page-wide inbound message surface.
type Window interface {
	AddMessageHandler(h MessageHandler) (remove func())
}
