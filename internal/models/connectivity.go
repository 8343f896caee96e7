package models

import "time"

// ConnectivityStatus is the last known reachability of the LMS.
type ConnectivityStatus struct {
	Offline   bool          `json:"offline"`
	Forced    bool          `json:"forced"`
	Reason    string        `json:"reason,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}
