package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJurisdiction(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"trailing state code", "CHEVRON 00123 SANTA ROSA CA", "CA"},
		{"full state name", "HILTON AUSTIN TEXAS", "TX"},
		{"two word state name", "TOLL PLAZA NEW JERSEY", "NJ"},
		{"code inside word does not match", "GROCERY STORE 441", ""},
		{"wa inside word does not match", "SEAWALL CAFE", ""},
		{"lowercase input", "parking denver colorado", "CO"},
		{"nothing recognizable", "POS DEBIT 4417", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseJurisdiction(tt.text))
		})
	}
}

func TestFromTag(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want string
	}{
		{"name dash code", "California - CA", "CA"},
		{"bare code", "TX", "TX"},
		{"lowercase code", "wa", "WA"},
		{"full name", "North Carolina", "NC"},
		{"unknown text", "somewhere nice", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTag(tt.tag))
		})
	}
}
