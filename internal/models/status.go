package models

import "time"

// Status is the periodic health document published by the status service.
type Status struct {
	DeviceID     string            `json:"device_id"`
	Callsign     string            `json:"callsign"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       string            `json:"status"`
	Connection   string            `json:"connection"`
	Battery      int               `json:"battery"`
	RetryCount   int               `json:"retry_count"`
	HistoryLen   int               `json:"history_len"`
	Course       float64           `json:"course"`
	Speed        float64           `json:"speed"`
	LastPosition *Position         `json:"last_position,omitempty"`
	Metrics      map[string]Metric `json:"metrics,omitempty"`
}

// Position is a reported location in the status document.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	HAE       float64   `json:"hae"`
	Timestamp time.Time `json:"timestamp"`
}
