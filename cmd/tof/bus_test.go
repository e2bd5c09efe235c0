package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want byte
		err  bool
	}{
		{in: "29", want: 0x29},
		{in: "0x2A", want: 0x2A},
		{in: "0X7f", want: 0x7F},
		{in: "8", want: 0x08},
		{in: "00", err: true},
		{in: "80", err: true},
		{in: "zz", err: true},
		{in: "0x123", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAddress(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
