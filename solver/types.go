package solver

import "fmt"

// Request describes one challenge image to solve.
type Request struct {
	ImageBase64 string
	// Variant is the challenge kind hint: press_hold, slider or generic.
	Variant string
	PageURL string
}

func (r Request) comment() string {
	switch r.Variant {
	case "press_hold":
		return "Press and hold challenge. Reply with hold time in milliseconds."
	case "slider":
		return "Slider challenge. Reply with drag distance in pixels."
	default:
		return fmt.Sprintf("Human verification challenge on %s", r.PageURL)
	}
}

// Solution is the service's answer. HoldMs is zero when no timing hint was given.
type Solution struct {
	TaskID int64                  `json:"taskId"`
	Text   string                 `json:"text"`
	Token  string                 `json:"token"`
	HoldMs int                    `json:"holdMs"`
	Cost   string                 `json:"cost,omitempty"`
	Raw    map[string]interface{} `json:"-"`
}

type imageToTextTask struct {
	Type    string `json:"type"`
	Body    string `json:"body"`
	Comment string `json:"comment,omitempty"`
}
