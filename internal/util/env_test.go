package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{" ON ", false, true},
		{"0", true, false},
		{"Off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("ORDERBOT_TEST_BOOL", tt.value)
		assert.Equal(t, tt.want, ParseBoolEnv("ORDERBOT_TEST_BOOL", tt.def), "value %q", tt.value)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ORDERBOT_TEST_STR", "  ")
	assert.Equal(t, "fallback", GetEnv("ORDERBOT_TEST_STR", "fallback"))
	t.Setenv("ORDERBOT_TEST_STR", " meta ")
	assert.Equal(t, "meta", GetEnv("ORDERBOT_TEST_STR", "fallback"))
}

func TestParseNumericEnv(t *testing.T) {
	t.Setenv("ORDERBOT_TEST_NUM", "0.2")
	assert.InDelta(t, 0.2, ParseFloatEnv("ORDERBOT_TEST_NUM", 0.7), 1e-9)
	assert.Equal(t, 5, ParseIntEnv("ORDERBOT_TEST_NUM", 5))

	t.Setenv("ORDERBOT_TEST_NUM", "400")
	assert.Equal(t, 400, ParseIntEnv("ORDERBOT_TEST_NUM", 5))
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("ORDERBOT_TEST_DUR", "15s")
	assert.Equal(t, 15*time.Second, ParseDurationEnv("ORDERBOT_TEST_DUR", time.Second))
	t.Setenv("ORDERBOT_TEST_DUR", "-1s")
	assert.Equal(t, time.Second, ParseDurationEnv("ORDERBOT_TEST_DUR", time.Second))
	t.Setenv("ORDERBOT_TEST_DUR", "soon")
	assert.Equal(t, time.Second, ParseDurationEnv("ORDERBOT_TEST_DUR", time.Second))
}
