package gcov

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHitsValue(t *testing.T) {
	t.Run("should parse plain counts", func(t *testing.T) {
		for formatted, want := range map[string]int64{
			"0":          0,
			"1":          1,
			"12345":      12345,
			"-1":         -1,
			"4294967296": 4294967296,
		} {
			got, err := parseHitsValue(formatted)
			require.NoError(t, err, formatted)
			assert.Equal(t, want, got, formatted)
		}
	})

	t.Run("should expand human-readable suffixes", func(t *testing.T) {
		for formatted, want := range map[string]int64{
			"1k":   1000,
			"1.7k": 1700,
			"0.5M": 500000,
			"2G":   2000000000,
		} {
			got, err := parseHitsValue(formatted)
			require.NoError(t, err, formatted)
			assert.Equal(t, want, got, formatted)
		}
	})

	t.Run("should reduce percentages to executed or not", func(t *testing.T) {
		for formatted, want := range map[string]int64{
			"0%":    0,
			"0.0%":  0,
			"80%":   1,
			"100%":  1,
			"2.4%":  1,
			"NAN %": 0,
		} {
			got, err := parseHitsValue(formatted)
			require.NoError(t, err, formatted)
			assert.Equal(t, want, got, formatted)
		}
	})

	t.Run("should reject garbage", func(t *testing.T) {
		for _, formatted := range []string{"", "x", "1.5", "k", "%"} {
			_, err := parseHitsValue(formatted)
			assert.Error(t, err, formatted)
		}
	})
}

func TestParsePercentValue(t *testing.T) {
	t.Run("should parse percentages", func(t *testing.T) {
		got, err := parsePercentValue("87.5%")
		require.NoError(t, err)
		assert.Equal(t, 87.5, got)
	})

	t.Run("should keep NAN as NaN", func(t *testing.T) {
		got, err := parsePercentValue("NAN %")
		require.NoError(t, err)
		assert.True(t, math.IsNaN(got))
	})

	t.Run("should reject values without a percent sign", func(t *testing.T) {
		_, err := parsePercentValue("42")
		assert.Error(t, err)
	})
}

func TestHitsValidator(t *testing.T) {
	t.Run("should pass sane values through", func(t *testing.T) {
		validator := newHitsValidator(DefaultOptions(), nil)
		got, err := validator.check(17, "        17:    3:x();")
		require.NoError(t, err)
		assert.Equal(t, int64(17), got)
	})

	t.Run("should reject negative hits by default", func(t *testing.T) {
		validator := newHitsValidator(DefaultOptions(), nil)
		_, err := validator.check(-1, "        -1:    3:x();")
		var negErr *NegativeHitsError
		require.ErrorAs(t, err, &negErr)
	})

	t.Run("should zero negative hits when ignored", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IgnoreParseErrors = map[string]struct{}{IgnoreNegativeHitsWarn: {}}
		var diag Diagnostics
		validator := newHitsValidator(opts, &diag)

		for i := 0; i < 3; i++ {
			got, err := validator.check(-5, "raw")
			require.NoError(t, err)
			assert.Equal(t, int64(0), got)
		}
		assert.Equal(t, int64(3), diag.NegativeHits.Load())
	})

	t.Run("should reject counters above the suspicious threshold", func(t *testing.T) {
		validator := newHitsValidator(DefaultOptions(), nil)
		_, err := validator.check(int64(1)<<32, "raw")
		var suspErr *SuspiciousHitsError
		require.ErrorAs(t, err, &suspErr)
	})

	t.Run("should accept huge counters when the threshold is disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SuspiciousHitsThreshold = 0
		validator := newHitsValidator(opts, nil)
		got, err := validator.check(int64(1)<<40, "raw")
		require.NoError(t, err)
		assert.Equal(t, int64(1)<<40, got)
	})

	t.Run("should zero suspicious counters when ignored", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IgnoreParseErrors = map[string]struct{}{IgnoreSuspiciousWarnOncePerFile: {}}
		var diag Diagnostics
		validator := newHitsValidator(opts, &diag)

		got, err := validator.check(DefaultSuspiciousHitsThreshold, "raw")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)
		assert.Equal(t, int64(1), diag.SuspiciousHits.Load())
	})

	t.Run("should treat ignore-all as ignoring every class", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IgnoreParseErrors = map[string]struct{}{IgnoreAll: {}}
		validator := newHitsValidator(opts, nil)

		got, err := validator.check(-3, "raw")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)

		got, err = validator.check(DefaultSuspiciousHitsThreshold+1, "raw")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)
	})
}
