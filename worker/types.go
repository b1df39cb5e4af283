package worker

// Wire types for the message/send exchange. Field names use camelCase JSON
// tags to match the worker protocol.

type (
	// SendMessageRequest is the request body POSTed to a worker endpoint.
	SendMessageRequest struct {
		Message TaskMessage `json:"message"`
		Thread  Thread      `json:"thread"`
	}

	// TaskMessage is the message carried by a send request.
	TaskMessage struct {
		Role      string `json:"role"`
		Parts     []Part `json:"parts"`
		MessageID string `json:"messageId"`
	}

	// Thread scopes an exchange to a run.
	Thread struct {
		ThreadID string `json:"threadId"`
	}

	// Part is one content part of a message or result.
	Part struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}

	// SendMessageResponse is the worker's reply: exactly one of Result or
	// Error is set.
	SendMessageResponse struct {
		Result *MessageResult `json:"result,omitempty"`
		Error  *RemoteError   `json:"error,omitempty"`
	}

	// MessageResult carries the successful reply parts.
	MessageResult struct {
		Parts []Part `json:"parts"`
	}

	// RemoteError is the structured error shape returned by workers.
	RemoteError struct {
		Message string `json:"message"`
	}
)

// Text concatenates the text parts of the result.
func (r *MessageResult) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, p := range r.Parts {
		if p.Kind == "text" {
			out += p.Text
		}
	}
	return out
}
