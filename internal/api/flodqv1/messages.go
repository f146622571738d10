// Package flodqv1 defines the flodq.v1.Deque gRPC service: its messages,
// the JSON codec they travel with and the client/server bindings.
package flodqv1

// End values on the wire.
const (
	EndHead = "head"
	EndTail = "tail"
)

type PushRequest struct {
	Namespace string   `json:"namespace,omitempty"`
	Queue     string   `json:"queue"`
	End       string   `json:"end"`
	Payloads  [][]byte `json:"payloads"`
}

type PushResponse struct {
	Len int `json:"len"`
}

type TryPopRequest struct {
	Namespace string `json:"namespace,omitempty"`
	Queue     string `json:"queue"`
	End       string `json:"end"`
}

type TryPopResponse struct {
	Found      bool   `json:"found"`
	Payload    []byte `json:"payload,omitempty"`
	PushedAtMs int64  `json:"pushedAtMs,omitempty"`
}

type LenRequest struct {
	Namespace string `json:"namespace,omitempty"`
	Queue     string `json:"queue"`
}

type LenResponse struct {
	Len int `json:"len"`
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status string `json:"status"`
}

// WaitRequest is a client message on the Wait stream. Exactly one field is
// set: Open first, then Ack or Reject once an Element arrives.
type WaitRequest struct {
	Open   *WaitOpen   `json:"open,omitempty"`
	Ack    *WaitAck    `json:"ack,omitempty"`
	Reject *WaitReject `json:"reject,omitempty"`
}

type WaitOpen struct {
	WaitID    string `json:"waitId"`
	Namespace string `json:"namespace,omitempty"`
	Queue     string `json:"queue"`
	End       string `json:"end"`
}

type WaitAck struct{}

type WaitReject struct{}

// WaitResponse is a server message on the Wait stream.
type WaitResponse struct {
	Registered *WaitRegistered `json:"registered,omitempty"`
	Element    *WaitElement    `json:"element,omitempty"`
	Requeued   *WaitRequeued   `json:"requeued,omitempty"`
}

type WaitRegistered struct {
	WaitID string `json:"waitId"`
}

type WaitElement struct {
	Payload    []byte `json:"payload"`
	PushedAtMs int64  `json:"pushedAtMs"`
}

// WaitRequeued answers a Reject. Error is empty when the element is back in
// its queue.
type WaitRequeued struct {
	Error string `json:"error,omitempty"`
}
