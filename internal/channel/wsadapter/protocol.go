package wsadapter

import "encoding/json"

// FrameType distinguishes request, response, and event frames on the wire.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the wsadapter wire envelope: a client sends "req" frames with a
// message method, the adapter replies with "res", and pushes "event"
// frames for responses the runtime dispatches back to the client.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func marshalFrame(f Frame) ([]byte, error) { return json.Marshal(f) }

func unmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

func responseFrame(id string, ok bool, payload any, errMsg string) ([]byte, error) {
	f := Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: errMsg}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = data
	}
	return marshalFrame(f)
}

func eventFrame(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return marshalFrame(Frame{Type: FrameTypeEvent, Payload: data})
}
