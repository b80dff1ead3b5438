package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpenseRecordValidate(t *testing.T) {
	valid := ExpenseRecord{
		ClaimID:   "claim-1",
		ClaimDate: time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		Amount:    52.96,
		Payee:     "Chevron",
	}

	tests := []struct {
		name    string
		mutate  func(*ExpenseRecord)
		wantErr bool
	}{
		{"valid record", func(_ *ExpenseRecord) {}, false},
		{"missing claim id", func(e *ExpenseRecord) { e.ClaimID = "" }, true},
		{"missing claim date", func(e *ExpenseRecord) { e.ClaimDate = time.Time{} }, true},
		{"zero amount", func(e *ExpenseRecord) { e.Amount = 0 }, true},
		{"negative amount", func(e *ExpenseRecord) { e.Amount = -5 }, true},
		{"missing payee", func(e *ExpenseRecord) { e.Payee = "" }, true},
		{"missing receipt is fine", func(e *ExpenseRecord) { e.ReceiptRef = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid
			tt.mutate(&record)
			err := record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpenseStatusIsTerminal(t *testing.T) {
	assert.False(t, ExpensePending.IsTerminal())
	assert.False(t, ExpenseProcessing.IsTerminal())
	assert.False(t, ExpenseMatched.IsTerminal())
	assert.True(t, ExpensePosted.IsTerminal())
	assert.True(t, ExpenseFlagged.IsTerminal())
	assert.True(t, ExpenseError.IsTerminal())
}

func TestExpenseStatusValid(t *testing.T) {
	assert.True(t, ExpensePending.Valid())
	assert.False(t, ExpenseStatus("limbo").Valid())
}
