package signing

import (
	"encoding/json"
)

// Status is the outcome of verifying a signed file.
type Status int

const (
	// StatusValid means the signature matches the media and metadata.
	StatusValid Status = iota
	// StatusInvalid means the record was checked and rejected.
	StatusInvalid
	// StatusUnsigned means no sidecar exists for the media.
	StatusUnsigned
	// StatusErrored means verification could not run (missing media, missing key, corrupt record).
	StatusErrored
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusUnsigned:
		return "unsigned"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes the verification of one file.
type Result struct {
	// ImagePath is the verified media path
	ImagePath string `json:"image" yaml:"image"`

	// Status is the outcome
	Status Status `json:"status" yaml:"status"`

	// Reason explains a non-valid status
	Reason error `json:"-" yaml:"-"`

	// Record is the loaded sidecar, if any
	Record *Record `json:"record,omitempty" yaml:"record,omitempty"`

	// FingerprintMatch reports whether the record names the verifying key
	FingerprintMatch bool `json:"fingerprint_match" yaml:"fingerprint_match"`
}

// Verified reports whether the file can be trusted.
func (r *Result) Verified() bool {
	return r != nil && r.Status == StatusValid
}

// ReasonText returns the reason as a string, empty when valid.
func (r *Result) ReasonText() string {
	if r == nil || r.Reason == nil {
		return ""
	}
	return r.Reason.Error()
}

// MarshalJSON includes the reason text.
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		*alias
		Reason string `json:"reason,omitempty"`
	}{
		alias:  (*alias)(r),
		Reason: r.ReasonText(),
	})
}
