package messages

import "time"

// CycleTrigger asks the device to run one cycle out of schedule.
type CycleTrigger struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
