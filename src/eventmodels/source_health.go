package eventmodels

import "time"

type SourceHealth struct {
	Name            string    `json:"name"`
	Running         bool      `json:"running"`
	Healthy         bool      `json:"healthy"`
	SubscriberCount int       `json:"subscriber_count"`
	Timestamp       time.Time `json:"timestamp"`
	Error           string    `json:"error,omitempty"`
}
