package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"627", 62700},
		{"627.00", 62700},
		{"0.01", 1},
		{"99.995", 10000},
		{"1234.56", 123456},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToMinorUnits(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("627").Equal(FromMinorUnits(62700)))
	assert.Equal(t, int64(123456), ToMinorUnits(FromMinorUnits(123456)))
}

func TestClassifyCode(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, ClassifyCode("PAYMENT_SUCCESS"))
	assert.Equal(t, OutcomePending, ClassifyCode("PAYMENT_PENDING"))
	assert.Equal(t, OutcomeFailure, ClassifyCode("PAYMENT_ERROR"))
	assert.Equal(t, OutcomeFailure, ClassifyCode("PAYMENT_DECLINED"))
	assert.Equal(t, OutcomeFailure, ClassifyCode(""))
}

func TestOutcomeLedgerStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, OutcomeSuccess.LedgerStatus())
	assert.Equal(t, StatusFailed, OutcomeFailure.LedgerStatus())
	assert.Equal(t, StatusPending, OutcomePending.LedgerStatus())

	p := &Payment{Status: StatusFailed}
	assert.Equal(t, OutcomeFailure, p.Outcome())
}
