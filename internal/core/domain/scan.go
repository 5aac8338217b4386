package domain

import "time"

// ScanEvent is emitted by an NFC/IoT reader bridge when a card is presented.
// The core never talks to reader hardware; scans arrive over HTTP or a queue.
type ScanEvent struct {
	ScanID    string    `json:"scan_id,omitempty"`
	TokenID   string    `json:"token_id"`
	DeviceID  string    `json:"device_id"`
	Location  string    `json:"location"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"-"`
}
