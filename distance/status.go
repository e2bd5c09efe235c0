package distance

// Status classifies a ranging result.
type Status byte

const (
	StatusValid                           Status = 0
	StatusSigmaAboveThreshold             Status = 1
	StatusSigmaBelowThreshold             Status = 2
	StatusDistanceBelowDetectionThreshold Status = 3
	StatusInvalidPhase                    Status = 4
	StatusHardwareFail                    Status = 5
	StatusNoWrapAroundCheck               Status = 6
	StatusWrappedTargetPhaseMismatch      Status = 7
	StatusProcessingFail                  Status = 8
	StatusXTalkFail                       Status = 9
	StatusInterruptError                  Status = 10
	StatusMergedTarget                    Status = 11
	StatusSignalTooWeak                   Status = 12
	StatusOther                           Status = 255
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
)

// returnStatus maps the 5-bit device return code to a Status.
var returnStatus = [32]Status{
	StatusOther, StatusOther, StatusOther,
	StatusHardwareFail,                    // 3
	StatusSigmaBelowThreshold,             // 4
	StatusSigmaBelowThreshold,             // 5
	StatusSigmaAboveThreshold,             // 6
	StatusWrappedTargetPhaseMismatch,      // 7
	StatusDistanceBelowDetectionThreshold, // 8
	StatusValid,                           // 9
	StatusOther, StatusOther,
	StatusXTalkFail,      // 12
	StatusInterruptError, // 13
	StatusOther, StatusOther, StatusOther, StatusOther,
	StatusInterruptError,    // 18
	StatusNoWrapAroundCheck, // 19
	StatusOther, StatusOther,
	StatusMergedTarget,  // 22
	StatusSignalTooWeak, // 23
	StatusOther, StatusOther, StatusOther, StatusOther,
	StatusOther, StatusOther, StatusOther, StatusOther,
}

// StatusFromReturn decodes RESULT_RANGE_STATUS. Only the low 5 bits are significant.
func StatusFromReturn(code byte) Status {
	return returnStatus[code&0x1F]
}

func (s Status) Severity() Severity {
	switch s {
	case StatusValid:
		return SeverityNone
	case StatusSigmaAboveThreshold, StatusSigmaBelowThreshold:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSigmaAboveThreshold:
		return "sigma above threshold"
	case StatusSigmaBelowThreshold:
		return "sigma below threshold"
	case StatusDistanceBelowDetectionThreshold:
		return "distance below detection threshold"
	case StatusInvalidPhase:
		return "invalid phase"
	case StatusHardwareFail:
		return "hardware fail"
	case StatusNoWrapAroundCheck:
		return "no wrap around check"
	case StatusWrappedTargetPhaseMismatch:
		return "wrapped target phase mismatch"
	case StatusProcessingFail:
		return "processing fail"
	case StatusXTalkFail:
		return "crosstalk fail"
	case StatusInterruptError:
		return "interrupt error"
	case StatusMergedTarget:
		return "merged target"
	case StatusSignalTooWeak:
		return "signal too weak"
	default:
		return "other"
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

func (s Status) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
