package banner

// Level constants
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Message is a transient outcome shown to the teacher, either in the status
// banner or inline in a modal. The zero value means nothing is shown.
type Message struct {
	Text  string
	Level string
}

// Success builds a success message.
func Success(text string) Message {
	return Message{Text: text, Level: LevelSuccess}
}

// Error builds an error message.
func Error(text string) Message {
	return Message{Text: text, Level: LevelError}
}

// IsZero reports whether there is nothing to show.
func (m Message) IsZero() bool {
	return m.Text == ""
}

// IsError reports whether the message describes a failure.
func (m Message) IsError() bool {
	return m.Level == LevelError
}
