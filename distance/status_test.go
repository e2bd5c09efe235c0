package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestStatusFromReturn(t *testing.T) {
	mapped := map[byte]Status{
		3:  StatusHardwareFail,
		4:  StatusSigmaBelowThreshold,
		5:  StatusSigmaBelowThreshold,
		6:  StatusSigmaAboveThreshold,
		7:  StatusWrappedTargetPhaseMismatch,
		8:  StatusDistanceBelowDetectionThreshold,
		9:  StatusValid,
		12: StatusXTalkFail,
		13: StatusInterruptError,
		18: StatusInterruptError,
		19: StatusNoWrapAroundCheck,
		22: StatusMergedTarget,
		23: StatusSignalTooWeak,
	}
	for code := 0; code < 32; code++ {
		expected, ok := mapped[byte(code)]
		if !ok {
			expected = StatusOther
		}
		assert.Equal(t, expected, StatusFromReturn(byte(code)), "code %d", code)
	}
	// upper bits are not part of the status field
	for code := 32; code < 256; code++ {
		assert.Equal(t, StatusFromReturn(byte(code&0x1F)), StatusFromReturn(byte(code)), "code %d", code)
	}
}

func TestStatus_Severity(t *testing.T) {
	all := []Status{
		StatusValid, StatusSigmaAboveThreshold, StatusSigmaBelowThreshold,
		StatusDistanceBelowDetectionThreshold, StatusInvalidPhase, StatusHardwareFail,
		StatusNoWrapAroundCheck, StatusWrappedTargetPhaseMismatch, StatusProcessingFail,
		StatusXTalkFail, StatusInterruptError, StatusMergedTarget, StatusSignalTooWeak,
		StatusOther,
	}
	for _, s := range all {
		var expected Severity
		switch s {
		case StatusValid:
			expected = SeverityNone
		case StatusSigmaAboveThreshold, StatusSigmaBelowThreshold:
			expected = SeverityWarning
		default:
			expected = SeverityError
		}
		assert.Equal(t, expected, s.Severity(), s.String())
		assert.NotEmpty(t, s.String())
	}
	assert.Equal(t, "warning", SeverityWarning.String())
}

func TestMeasurement_YAML(t *testing.T) {
	out, err := yaml.Marshal(Measurement{Status: StatusSignalTooWeak, DistanceMM: 12})
	assert.NoError(t, err)
	assert.Contains(t, string(out), "status: signal too weak")
	assert.Contains(t, string(out), "distance_mm: 12")
}
