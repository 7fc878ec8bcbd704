package models

import "time"

// MaxAttemptHistory caps the per-account attempt ledger
const MaxAttemptHistory = 50

// UnknownLocation is the label used when an IP cannot be resolved
const UnknownLocation = "Unknown Location"

// LoginAttempt is an immutable record of one credential check outcome
type LoginAttempt struct {
	ID                string    `db:"id" json:"id"`
	Email             string    `db:"email" json:"email"`
	Timestamp         time.Time `db:"attempt_time" json:"timestamp"`
	IPAddress         string    `db:"ip_address" json:"ip_address"`
	UserAgent         string    `db:"user_agent" json:"user_agent"`
	Success           bool      `db:"success" json:"success"`
	Location          string    `db:"location" json:"location"`
	DeviceFingerprint string    `db:"device_fingerprint" json:"device_fingerprint"`
}

// ClientContext describes the client making a login request.
// It is supplied by the transport layer, never generated.
type ClientContext struct {
	IPAddress      string
	UserAgent      string
	AcceptLanguage string
}

// AnomalyFlags are risk signals derived from the attempt ledger. Never persisted.
type AnomalyFlags struct {
	NewDevice              bool `json:"new_device"`
	SuspiciousIP           bool `json:"suspicious_ip"`
	MultipleFailedAttempts bool `json:"multiple_failed_attempts"`
	UnusualLocation        bool `json:"unusual_location"`
	RapidAttempts          bool `json:"rapid_attempts"`
}

// Count returns the number of raised flags
func (f AnomalyFlags) Count() int {
	n := 0
	for _, set := range []bool{f.NewDevice, f.SuspiciousIP, f.MultipleFailedAttempts, f.UnusualLocation, f.RapidAttempts} {
		if set {
			n++
		}
	}
	return n
}

// Names returns the raised flags as snake_case labels, for logging
func (f AnomalyFlags) Names() []string {
	var names []string
	if f.NewDevice {
		names = append(names, "new_device")
	}
	if f.SuspiciousIP {
		names = append(names, "suspicious_ip")
	}
	if f.MultipleFailedAttempts {
		names = append(names, "multiple_failed_attempts")
	}
	if f.UnusualLocation {
		names = append(names, "unusual_location")
	}
	if f.RapidAttempts {
		names = append(names, "rapid_attempts")
	}
	return names
}
