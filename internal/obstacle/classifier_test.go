package obstacle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/grid-pilot/internal/mission"
	"github.com/roman-kulish/grid-pilot/internal/timeutil"
)

// scripted returns a reader yielding highs values above threshold followed by
// lows below it, and a pointer to the number of reads.
func scripted(highs, lows int, threshold float64) (SensorReader, *int) {
	var n int
	return func() mission.SensorSample {
		n++
		if n <= highs {
			return mission.SensorSample{Value: threshold + 1}
		}
		if n <= highs+lows {
			return mission.SensorSample{Value: threshold}
		}
		return mission.SensorSample{Value: threshold + 1000}
	}, &n
}

func TestSampleWindow_Debounce(t *testing.T) {
	tests := []struct {
		name      string
		highs     int
		first     bool
		positive  bool
		positives int
	}{
		{name: "39 of 50", highs: 39, positive: false, positives: 39},
		{name: "40 of 50", highs: 40, positive: true, positives: 40},
		{name: "all", highs: 50, positive: true, positives: 50},
		{name: "none", highs: 0, positive: false, positives: 0},
		{name: "first waypoint", highs: 50, first: true, positive: false, positives: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(time.Time{})
			c, err := New(DefaultConfig(), WithClock(clock))
			require.NoError(t, err)

			read, reads := scripted(tt.highs, 50-tt.highs, DefaultThreshold)
			v := c.SampleWindow(read, tt.first)

			assert.Equal(t, tt.positive, v.Positive)
			assert.Equal(t, tt.positives, v.Positives)
			assert.Equal(t, 50, v.WindowSize)
			assert.Equal(t, tt.first, v.Exempt)

			assert.Equal(t, 50, *reads, "reads per window")
			assert.Len(t, clock.Sleeps(), 49)
			assert.Equal(t, 49*DefaultSampleInterval, clock.Slept())
		})
	}
}

func TestSampleWindow_ThresholdIsStrict(t *testing.T) {
	c, err := New(Config{WindowSize: 3, DebounceCount: 1, Threshold: 100}, WithClock(timeutil.NewMockClock(time.Time{})))
	require.NoError(t, err)

	v := c.SampleWindow(func() mission.SensorSample { return mission.SensorSample{Value: 100} }, false)
	assert.False(t, v.Positive)
	assert.Zero(t, v.Positives)
}

func TestSampleWindow_NoHistory(t *testing.T) {
	c, err := New(Config{WindowSize: 4, DebounceCount: 3, Threshold: 10}, WithClock(timeutil.NewMockClock(time.Time{})))
	require.NoError(t, err)

	values := []float64{11, 11, 0, 0, 11, 0, 0, 0}
	var i int
	read := func() mission.SensorSample {
		v := values[i]
		i++
		return mission.SensorSample{Value: v}
	}

	assert.Equal(t, 2, c.SampleWindow(read, false).Positives)
	assert.Equal(t, 1, c.SampleWindow(read, false).Positives)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "debounce equals window", cfg: Config{WindowSize: 50, DebounceCount: 50}, wantErr: true},
		{name: "zero debounce", cfg: Config{WindowSize: 50, DebounceCount: 0}, wantErr: true},
		{name: "tiny window", cfg: Config{WindowSize: 1, DebounceCount: 1}, wantErr: true},
		{name: "negative interval", cfg: Config{WindowSize: 50, DebounceCount: 45, SampleInterval: -time.Millisecond}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
