package errors

// Error codes for the GameTime analyzer.
// These codes are used in error messages and logs to provide consistent
// error identification across the toolchain.
//
// Error code ranges:
// G0100-G0199: Input errors (malformed or unsupported IR shape, fatal to the path)
// G0200-G0299: Unsupported feature errors (fatal to the path)
// G0300-G0399: Configuration errors
// G0400-G0499: Reserved for future use
// G0900-G0999: Precondition violations (programmer errors, panic)
// W0800-W0899: Warnings (non-fatal)

const (
	// G0101: A switch instruction reached the analyzer. Switches must be
	// lowered to if-chains before path analysis.
	ErrorSwitchInstruction = "G0101"

	// G0102: Opcode not handled by the executor dispatch.
	ErrorUnknownOpcode = "G0102"

	// G0103: Null operand where one is required, or otherwise malformed IR.
	ErrorMalformedIR = "G0103"

	// G0104: Function unit lookup failed.
	ErrorUnitLookup = "G0104"

	// G0105: A path block id does not name a block of the unit.
	ErrorUnknownBlock = "G0105"

	// G0201: Immediate operand that is neither integer nor float.
	ErrorImmediateKind = "G0201"

	// G0202: Non-constant offset in an aggregate access.
	ErrorAggregateOffset = "G0202"

	// G0203: Operator applied with the wrong number of parameters.
	ErrorArityMismatch = "G0203"

	// G0301: Configuration file that does not parse, or an option with an
	// invalid value. Unknown option keys are ignored, not reported.
	ErrorBadConfig = "G0301"

	// Warning codes

	// W0801: Float immediate truncated to integer.
	WarningFloatTruncated = "W0801"

	// W0802: Aggregate access coverage does not match field boundaries;
	// the uncovered high bits were zero-padded.
	WarningPartialCoverage = "W0802"

	// Precondition violation codes. These identify bugs in the analyzer
	// itself, not bad input; they panic rather than return.

	// G0901: Negative or out-of-range parameter index.
	PrecondParameterIndex = "G0901"

	// G0902: Dereference of a non-pointer expression.
	PrecondNotAPointer = "G0902"

	// G0903: Temporary-pointer construction with a non-pointer type.
	PrecondTempPointerType = "G0903"
)

// Describe returns a human-readable description of the error code.
func Describe(code string) string {
	switch code {
	case ErrorSwitchInstruction:
		return "switch instructions must be lowered to if-chains before analysis"
	case ErrorUnknownOpcode:
		return "opcode is not handled by the executor dispatch"
	case ErrorMalformedIR:
		return "IR instruction is missing a required operand"
	case ErrorUnitLookup:
		return "function unit lookup failed"
	case ErrorUnknownBlock:
		return "path names a block that is not part of the unit"
	case ErrorImmediateKind:
		return "immediate operand is neither integer nor float"
	case ErrorAggregateOffset:
		return "aggregate access offsets must be compile-time constants"
	case ErrorArityMismatch:
		return "operator applied with the wrong number of parameters"
	case ErrorBadConfig:
		return "configuration file does not parse or an option has an invalid value"
	case WarningFloatTruncated:
		return "float immediate was truncated to an integer"
	case WarningPartialCoverage:
		return "aggregate access does not line up with field boundaries"
	default:
		return "unknown error code"
	}
}

// IsWarning returns true if the code represents a warning rather than an error.
func IsWarning(code string) bool {
	return len(code) > 0 && code[0] == 'W'
}
