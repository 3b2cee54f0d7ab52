package dialog

// Button is one inline-keyboard button: a visible label plus the callback
// data the transport sends back when it is pressed.
type Button struct {
	Label string
	Data  string
}

// Reply is a prompt for the transport to render: message text and an
// optional inline keyboard laid out as rows of buttons.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

func row(buttons ...Button) []Button {
	return buttons
}
