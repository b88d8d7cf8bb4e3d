package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func iptr(v int) *int         { return &v }
func fptr(v float64) *float64 { return &v }

func TestSecurityEventValidatePorts(t *testing.T) {
	ok := &SecurityEvent{SourcePort: iptr(1), DestinationPort: iptr(65535)}
	assert.NoError(t, ok.Validate())

	low := &SecurityEvent{SourcePort: iptr(0)}
	assert.Error(t, low.Validate())
	high := &SecurityEvent{DestinationPort: iptr(65536)}
	assert.Error(t, high.Validate())

	empty := &SecurityEvent{}
	assert.NoError(t, empty.Validate(), "absent ports are fine")
}

func TestSecurityEventValidateIPs(t *testing.T) {
	cases := []struct {
		ev      SecurityEvent
		wantErr bool
	}{
		{SecurityEvent{SourceIP: "203.0.113.7"}, false},
		{SecurityEvent{DestinationIP: "2001:db8::1"}, false},
		{SecurityEvent{SourceIP: "999.1.1.1"}, true},
		{SecurityEvent{DestinationIP: "not-an-ip"}, true},
	}
	for _, tc := range cases {
		err := tc.ev.Validate()
		if tc.wantErr {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestSecurityEventValidateReputation(t *testing.T) {
	cases := []struct {
		score   float64
		wantErr bool
	}{
		{0, false},
		{100, false},
		{-0.01, true},
		{100.01, true},
	}
	for _, tc := range cases {
		ev := SecurityEvent{ReputationScore: fptr(tc.score)}
		err := ev.Validate()
		if tc.wantErr {
			assert.Error(t, err, tc.score)
		} else {
			assert.NoError(t, err, tc.score)
		}
	}
}

func TestValidIP(t *testing.T) {
	assert.True(t, ValidIP("203.0.113.7"))
	assert.True(t, ValidIP("2001:db8::1"))
	assert.False(t, ValidIP("evil.example.com"))
	assert.False(t, ValidIP(""))
}

func TestValidDomain(t *testing.T) {
	assert.True(t, ValidDomain("evil.example.com"))
	assert.True(t, ValidDomain("  evil.example.com  "), "surrounding whitespace is trimmed")
	assert.False(t, ValidDomain("localhost"))
	assert.False(t, ValidDomain("has space.com"))
	assert.False(t, ValidDomain(""))
}
