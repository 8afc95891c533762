// Package verdict maps the exit status of the signature verifier to a
// signing outcome.
package verdict

import "fmt"

// Code is the verifier's process exit status.
type Code int

// Exit codes published by the JSignPdf verifier.
const (
	SignatureValid Code = 0
	NoSignature    Code = 10
	AnyWarning     Code = 15
	FirstWarning   Code = 20
	LastWarning    Code = 66
)

var names = map[Code]string{
	0:   "SIG_STAT_CODE_INFO_SIGNATURE_VALID",
	10:  "SIG_STAT_CODE_WARNING_NO_SIGNATURE",
	15:  "SIG_STAT_CODE_WARNING_ANY_WARNING",
	20:  "SIG_STAT_CODE_WARNING_NO_REVOCATION_INFO",
	30:  "SIG_STAT_CODE_WARNING_TIMESTAMP_INVALID",
	40:  "SIG_STAT_CODE_WARNING_NO_TIMESTAMP_TOKEN",
	50:  "SIG_STAT_CODE_WARNING_SIGNATURE_OCSP_INVALID",
	60:  "SIG_STAT_CODE_WARNING_CERTIFICATE_CANT_BE_VERIFIED",
	61:  "SIG_STAT_CODE_WARNING_CERTIFICATE_EXPIRED",
	62:  "SIG_STAT_CODE_WARNING_CERTIFICATE_NOT_YET_VALID",
	63:  "SIG_STAT_CODE_WARNING_CERTIFICATE_REVOKED",
	64:  "SIG_STAT_CODE_WARNING_CERTIFICATE_UNSUPPORTED_CRITICAL_EXTENSION",
	65:  "SIG_STAT_CODE_WARNING_CERTIFICATE_INVALID_STATE",
	66:  "SIG_STAT_CODE_WARNING_CERTIFICATE_PROBLEM",
	70:  "SIG_STAT_CODE_WARNING_UNSIGNED_CONTENT",
	101: "SIG_STAT_CODE_ERROR_FILE_NOT_READABLE",
	102: "SIG_STAT_CODE_ERROR_UNEXPECTED_PROBLEM",
	105: "SIG_STAT_CODE_ERROR_ANY_ERROR",
	110: "SIG_STAT_CODE_ERROR_CERTIFICATION_BROKEN",
	120: "SIG_STAT_CODE_ERROR_REVISION_MODIFIED",
}

// UnknownLabel is reported for codes outside the verifier's table.
const UnknownLabel = "ERROR: unknown code"

// Label returns the verifier's symbolic name for code.
func Label(code Code) string {
	if name, ok := names[code]; ok {
		return name
	}
	return UnknownLabel
}

// Known reports whether code appears in the verifier's table.
func Known(code Code) bool {
	_, ok := names[code]
	return ok
}

// Outcome is the semantic reading of a Code.
type Outcome int

const (
	Problem Outcome = iota
	SignedValid
	SignedWithWarnings
	NotSigned
)

func (o Outcome) String() string {
	switch o {
	case SignedValid:
		return "properly signed"
	case SignedWithWarnings:
		return "signed but with problems"
	case NotSigned:
		return "NOT signed"
	default:
		return "problems"
	}
}

// Signed reports whether the file carries a signature, valid or not.
func (o Outcome) Signed() bool {
	return o == SignedValid || o == SignedWithWarnings
}

// Interesting reports whether the outcome warrants an artifact.
func (o Outcome) Interesting() bool {
	return o.Signed()
}

// Classify is total: every integer maps to exactly one outcome.
func Classify(code Code) Outcome {
	switch {
	case code == SignatureValid:
		return SignedValid
	case code >= FirstWarning && code <= LastWarning:
		return SignedWithWarnings
	case code == NoSignature:
		return NotSigned
	default:
		return Problem
	}
}

// Describe renders a one-line log message for a verdict.
func Describe(code Code, name string) string {
	return fmt.Sprintf("SIGNED? %d %s ('%s'):'%s'", int(code), Classify(code), Label(code), name)
}
