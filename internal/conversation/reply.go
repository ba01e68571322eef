package conversation

// Key is one inline keyboard button offered with a prompt.
type Key struct {
	Label string
	Token string
}

// Reply is what the transport should show the user after an event.
type Reply struct {
	Prompt   string
	Keyboard [][]Key
	HTML     bool

	// Terminal is set once the listing was handed to the publisher.
	Terminal bool
	// Rejected means the event did not fit the current state; the draft is unchanged.
	Rejected bool
	// Ended means the session is gone (published, cancelled or failed).
	Ended bool
	// Ignored means there is nothing to send back.
	Ignored bool
}

// Empty reports whether the reply carries anything to send.
func (r Reply) Empty() bool {
	return r.Ignored || r.Prompt == ""
}

// Tokens lists every button token offered by the reply.
func (r Reply) Tokens() []string {
	var out []string
	for _, row := range r.Keyboard {
		for _, k := range row {
			out = append(out, k.Token)
		}
	}
	return out
}
