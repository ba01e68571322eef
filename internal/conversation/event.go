package conversation

// EventKind is the class of input a state accepts.
type EventKind int

const (
	ButtonEvent EventKind = iota + 1
	TextEvent
	PhotoEvent
)

func (k EventKind) String() string {
	switch k {
	case ButtonEvent:
		return "button"
	case TextEvent:
		return "text"
	case PhotoEvent:
		return "photo"
	default:
		return "unknown"
	}
}

// Event is one user input delivered by the transport.
type Event interface {
	Kind() EventKind
}

// Button is a press on an inline keyboard key.
type Button struct {
	Token string
}

// Text is a free-text message.
type Text struct {
	Body string
}

// Photo is an uploaded image, referenced by the transport's opaque file id.
type Photo struct {
	MediaRef string
}

func (Button) Kind() EventKind { return ButtonEvent }
func (Text) Kind() EventKind   { return TextEvent }
func (Photo) Kind() EventKind  { return PhotoEvent }
