package realtime

import (
	"encoding/json"
	"fmt"
)

// FormatSSE renders one server-sent event frame: an "event:" line naming the
// event followed by the JSON payload as "data:".
func FormatSSE(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)), nil
}

// ConnectedPayload echoes the resolved subscription filters back to a client
// as the first frame on a new stream.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       uint   `json:"userId,omitempty"`
	OwnerID      uint   `json:"ownerId,omitempty"`
}
