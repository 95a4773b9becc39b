package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeExternalService ErrorCode = "COMMON_014"
)

// Aliases used at call sites that predate the module prefixes.
const (
	CodeInvalidParam = ErrCodeBadRequest
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Configuration Error Codes
const (
	ErrCodeConfiguration ErrorCode = "CONFIG_001"
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidFormat       ErrorCode = "MOL_003"
	ErrCodeMoleculeParsingFailed       ErrorCode = "MOL_006"
	ErrCodeFingerprintGenerationFailed ErrorCode = "MOL_007"
	ErrCodeFeatureIndexInconsistent    ErrorCode = "MOL_015"
	ErrCodeMoleculePropertyMissing     ErrorCode = "MOL_016"
	ErrCodeFeatureLookupFailed         ErrorCode = "MOL_017"
	ErrCodeSMARTSExportFailed          ErrorCode = "MOL_018"
)

// Run Error Codes
const (
	ErrCodeNoInput     ErrorCode = "RUN_001"
	ErrCodeOutputWrite ErrorCode = "RUN_002"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeBadRequest:      "bad request",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeExternalService: "external service error",

	ErrCodeConfiguration: "invalid configuration",

	ErrCodeMoleculeInvalidFormat:       "unsupported molecule format",
	ErrCodeMoleculeParsingFailed:       "failed to parse molecule",
	ErrCodeFingerprintGenerationFailed: "failed to generate fingerprint",
	ErrCodeFeatureIndexInconsistent:    "feature identifier missing from lookup index",
	ErrCodeMoleculePropertyMissing:     "molecule property not found",
	ErrCodeFeatureLookupFailed:         "failed to build feature lookup",
	ErrCodeSMARTSExportFailed:          "failed to export SMARTS",

	ErrCodeNoInput:     "no molecule read",
	ErrCodeOutputWrite: "failed to write output",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}
