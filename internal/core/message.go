package core

// Message is an inbound chat line annotated by the classifier. Handlers
// receive the same pointer in turn, so changes made by one handler are seen
// by the next.
type Message struct {
	Room string
	User string
	// Raw is the text exactly as delivered, markup included.
	Raw string
	// Text is the display text, with styling markup removed.
	Text      string
	IsTip     bool
	TipAmount float64
	// Params is Text lowercased and split on whitespace.
	Params []string
}

// Command returns the first token, by convention the command keyword.
func (m *Message) Command() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[0]
}

// Args returns the tokens after the command keyword.
func (m *Message) Args() []string {
	if len(m.Params) < 2 {
		return nil
	}
	return m.Params[1:]
}
