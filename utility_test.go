package shiplog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInformation, false},
		{"Information", LevelInformation, false},
		{" warn ", LevelWarning, false},
		{"error", LevelError, false},
		{"critical", LevelCritical, false},
		{"3", LevelWarning, false},
		{"loud", LevelInformation, true},
		{"", LevelInformation, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), errPrefix)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestParseKeyValue(t *testing.T) {
	key, value, err := parseKeyValue(" server_url = http://a=b ")
	require.NoError(t, err)
	assert.Equal(t, "server_url", key)
	assert.Equal(t, "http://a=b", value, "only the first equals sign splits")

	_, _, err = parseKeyValue("novalue")
	assert.ErrorContains(t, err, "expected key=value")

	_, _, err = parseKeyValue("=value")
	assert.ErrorContains(t, err, "key cannot be empty")
}

func TestParseStatusList(t *testing.T) {
	codes, err := parseStatusList("404, 503,")
	require.NoError(t, err)
	assert.Equal(t, []int{404, 503}, codes)

	codes, err = parseStatusList("")
	require.NoError(t, err)
	assert.Empty(t, codes)

	_, err = parseStatusList("99")
	assert.Error(t, err)
	_, err = parseStatusList("abc")
	assert.Error(t, err)
}

func TestCombineErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	assert.Nil(t, combineErrors(nil, nil))
	assert.Same(t, first, combineErrors(first, nil))
	assert.Same(t, second, combineErrors(nil, second))

	both := combineErrors(first, second)
	assert.EqualError(t, both, "first; second")
	assert.ErrorIs(t, both, second)
}

func TestFmtErrorfPrefix(t *testing.T) {
	assert.EqualError(t, fmtErrorf("bad %d", 1), "shiplog: bad 1")
	assert.EqualError(t, fmtErrorf("shiplog: once"), "shiplog: once")
}

func TestApplyOverride(t *testing.T) {
	cfg := testConfig()
	err := cfg.ApplyOverride(
		"api_key=abc",
		"minimum_level=4",
		"batch_size_limit=5",
		"compression=gzip",
		"enable_stdout=true",
		"retry_statuses=404,503",
	)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.APIKey)
	assert.Equal(t, "Error", cfg.MinimumLevel, "ordinals are stored by name")
	assert.Equal(t, int64(5), cfg.BatchSizeLimit)
	assert.Equal(t, "gzip", cfg.Compression)
	assert.True(t, cfg.EnableStdout)
	assert.Equal(t, "404,503", cfg.RetryStatuses)
}

func TestApplyOverrideAtomic(t *testing.T) {
	cfg := testConfig()
	err := cfg.ApplyOverride("api_key=abc", "batch_size_limit=many")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size_limit")
	assert.Empty(t, cfg.APIKey, "failed overrides leave the config untouched")
}

func TestApplyOverrideCombinedErrors(t *testing.T) {
	cfg := testConfig()
	err := cfg.ApplyOverride("bogus=1", "enable_stdout=maybe", "minimum_level=9")
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "multiple configuration errors:")
	assert.Contains(t, msg, "1. unknown configuration key 'bogus'")
	assert.Contains(t, msg, "2. invalid boolean value for enable_stdout")
	assert.Contains(t, msg, "3. invalid minimum_level ordinal '9'")
}
