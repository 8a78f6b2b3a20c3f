package health

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
		serving   bool
	}{
		{"healthy", NewHealthy("a", "ok"), true, false, false, true},
		{"degraded", NewDegraded("a", "slow"), false, true, false, true},
		{"unhealthy", NewUnhealthy("a", "down"), false, false, true, false},
		{"empty", Status{}, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.healthy, tt.status.IsHealthy())
			assert.Equal(t, tt.degraded, tt.status.IsDegraded())
			assert.Equal(t, tt.unhealthy, tt.status.IsUnhealthy())
			assert.Equal(t, tt.serving, tt.status.Serving())
		})
	}
}

func TestNewStatus_Fields(t *testing.T) {
	s := NewHealthy("registry", "generation 3")
	assert.Equal(t, "registry", s.Component)
	assert.True(t, s.Healthy)
	assert.Equal(t, StateHealthy, s.Status)
	assert.Equal(t, "generation 3", s.Message)
	assert.False(t, s.Timestamp.IsZero())

	assert.False(t, NewDegraded("x", "").Healthy)
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError("nats", nil).IsHealthy())

	s := FromError("nats", errors.New("dial nats://user:pw@10.0.0.5:4222 failed: token=abc123"))
	assert.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.NotContains(t, s.Message, "abc123")
	assert.NotContains(t, s.Message, "user:pw")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		absent  []string
		present []string
	}{
		{
			name:    "empty",
			input:   "",
			absent:  nil,
			present: nil,
		},
		{
			name:    "broker url",
			input:   "connect tcp://broker.local:1883 refused",
			absent:  []string{"broker.local"},
			present: []string{"[URL]", "refused"},
		},
		{
			name:    "file path",
			input:   "open /etc/switchboard/sensors.yml: no such file",
			absent:  []string{"/etc/switchboard"},
			present: []string{"[PATH]"},
		},
		{
			name:    "bare address",
			input:   "timeout talking to 192.168.1.20",
			absent:  []string{"192.168.1.20"},
			present: []string{"[IP]"},
		},
		{
			name:    "credential",
			input:   "auth failed password=hunter2",
			absent:  []string{"hunter2"},
			present: []string{"[REDACTED]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeErrorMessage(tt.input)
			for _, s := range tt.absent {
				assert.False(t, strings.Contains(got, s), "%q should not contain %q", got, s)
			}
			for _, s := range tt.present {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		subs  []Status
		state string
	}{
		{"no subs", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewHealthy("c", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("switchboard", tt.subs)
			assert.Equal(t, tt.state, agg.Status)
			assert.Equal(t, "switchboard", agg.Component)
			assert.Len(t, agg.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	agg := Aggregate("sys", subs)
	subs[0].Message = "changed"
	assert.Empty(t, agg.SubStatuses[0].Message)
}
