package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RetrainRequestMessage asks a worker to retrain the category model. It
// carries no data; the worker reads the labeled set itself.
type RetrainRequestMessage struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewRetrainRequestMessage(reason, requestedBy string) *RetrainRequestMessage {
	return &RetrainRequestMessage{
		ID:          uuid.NewString(),
		Reason:      reason,
		RequestedBy: requestedBy,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *RetrainRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RetrainRequestMessageFromJSON decodes a message and rejects ones without
// an id or timestamp.
func RetrainRequestMessageFromJSON(data []byte) (*RetrainRequestMessage, error) {
	var msg RetrainRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("retrain request without id")
	}
	if msg.Timestamp.IsZero() {
		return nil, errors.New("retrain request without timestamp")
	}
	return &msg, nil
}
