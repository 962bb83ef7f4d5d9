// Package tuyaerr defines the error taxonomy tuyalink uses both for Go
// error returns and for the numeric codes carried in synthetic broadcast
// messages. Its shape follows the teacher's pkg/helpers/error.go: a single
// exported Error type wrapping a title and an optional cause, with
// package-level sentinel constructors.
package tuyaerr

import "fmt"

// Error is a tuyalink error: a stable numeric Code (used in synthetic
// broadcasts and documented in TinyTuya's error-code table), a short
// Title, and an optional wrapped cause.
type Error struct {
	Code  int
	Title string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %v", e.Title, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%d)", e.Title, e.Code)
}

// Unwrap allows errors.Is/As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an Error with no wrapped cause.
func New(code int, title string) *Error {
	return &Error{Code: code, Title: title}
}

// Wrap builds an Error carrying cause as its wrapped error.
func Wrap(code int, title string, cause error) *Error {
	return &Error{Code: code, Title: title, Err: cause}
}

// Numeric error codes, matching TinyTuya's convention. tuyalink is a
// LAN-only client and never itself produces the cloud-specific codes
// (909-913); they're kept so callers that see them in raw device
// broadcasts (rare, but devices occasionally echo cloud error JSON) can
// still decode them via CodeTitle.
const (
	CodeSuccess      = 0
	CodeJSON         = 900
	CodeConnect      = 901
	CodeTimeout      = 902
	CodeRange        = 903
	CodePayload      = 904
	CodeOffline      = 905
	CodeState        = 906
	CodeFunction     = 907
	CodeDevType      = 908
	CodeCloudKey     = 909
	CodeCloudResp    = 910
	CodeCloudToken   = 911
	CodeParams       = 912
	CodeCloud        = 913
	CodeKeyOrVersion = 914
	CodeDuplicate    = 915
)

var (
	ErrDecryptionFailed  = New(CodeKeyOrVersion, "DECRYPTION_FAILED")
	ErrEncryptionFailed  = New(CodeKeyOrVersion, "ENCRYPTION_FAILED")
	ErrCrcMismatch       = New(CodeKeyOrVersion, "CRC_MISMATCH")
	ErrHmacMismatch      = New(CodeKeyOrVersion, "HMAC_MISMATCH")
	ErrInvalidHeader     = New(CodePayload, "INVALID_HEADER")
	ErrInvalidPayload    = New(CodePayload, "INVALID_PAYLOAD")
	ErrConnectionFailed  = New(CodeConnect, "CONNECTION_FAILED")
	ErrTimeout           = New(CodeTimeout, "TIMEOUT")
	ErrOffline           = New(CodeOffline, "OFFLINE")
	ErrHandshakeFailed   = New(CodeKeyOrVersion, "HANDSHAKE_FAILED")
	ErrKeyOrVersion      = New(CodeKeyOrVersion, "KEY_OR_VERSION")
	ErrJSON              = New(CodeJSON, "INVALID_JSON")
	ErrDuplicateDevice   = New(CodeDuplicate, "DUPLICATE_DEVICE")
	ErrDeviceNotFound    = New(CodeJSON, "DEVICE_NOT_FOUND")
)

// codeTitles documents the full TinyTuya code table for CodeTitle, not all
// of which have a matching sentinel Error above.
var codeTitles = map[int]string{
	CodeSuccess:      "Connection Successful",
	CodeJSON:         "Invalid JSON Response from Device",
	CodeConnect:      "Network Error: Unable to Connect",
	CodeTimeout:      "Timeout Waiting for Device",
	CodeRange:        "Specified Value Out of Range",
	CodePayload:      "Unexpected Payload from Device",
	CodeOffline:      "Network Error: Device Unreachable",
	CodeState:        "Device in Unknown State",
	CodeFunction:     "Function Not Supported by Device",
	CodeDevType:      "Device22 Detected: Retry Command",
	CodeCloudKey:     "Missing Tuya Cloud Key and Secret",
	CodeCloudResp:    "Invalid JSON Response from Cloud",
	CodeCloudToken:   "Unable to Get Cloud Token",
	CodeParams:       "Missing Function Parameters",
	CodeCloud:        "Error Response from Tuya Cloud",
	CodeKeyOrVersion: "Check device key or version",
	CodeDuplicate:    "Device ID already exists",
}

// CodeTitle returns the human-readable title for a numeric error code, or
// "Unknown Error" if code isn't in the table.
func CodeTitle(code int) string {
	if t, ok := codeTitles[code]; ok {
		return t
	}
	return "Unknown Error"
}

// FromIOTimeout wraps a read/write/connect timeout as the Timeout error.
func FromIOTimeout(cause error) *Error {
	return Wrap(CodeTimeout, "TIMEOUT", cause)
}

// FromIO classifies a generic I/O error as ConnectionFailed; callers that
// already know it's a refused connection should use ErrConnectionFailed
// directly instead.
func FromIO(cause error) *Error {
	return Wrap(CodeConnect, "IO_ERROR", cause)
}
