package vad

// Indicator states
const (
	StateActive    = "active"
	StateCapturing = "capturing"
)

// Indicator describes how a client should render the current speech probability
type Indicator struct {
	State string `json:"state"`
	Color string `json:"color"`
	Text  string `json:"text"`
}

// IndicatorFor maps a frame probability to its status indicator
func IndicatorFor(probability float32) Indicator {
	switch {
	case probability > 0.8:
		return Indicator{State: StateCapturing, Color: "#ff0000", Text: "Speech detected"}
	case probability > 0.5:
		return Indicator{State: StateActive, Color: "#ffa500", Text: "Potential speech detected"}
	default:
		return Indicator{State: StateActive, Color: "#00ff00", Text: "Listening"}
	}
}
