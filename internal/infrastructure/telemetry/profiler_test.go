package telemetry_test

import (
	"sync"
	"testing"

	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfilerDisabled(t *testing.T) {
	cfg := telemetry.ProfilerConfig{
		Enabled:         false,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "storefront-backend",
	}

	profiler, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, profiler)

	assert.False(t, profiler.IsEnabled())
	assert.Equal(t, "storefront-backend", profiler.GetConfig().ApplicationName)
	assert.NoError(t, profiler.Stop())
}

func TestNewProfilerValidation(t *testing.T) {
	t.Run("missing server address", func(t *testing.T) {
		profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:         true,
			ApplicationName: "storefront-backend",
		}, zaptest.NewLogger(t))

		require.Error(t, err)
		assert.Nil(t, profiler)
		assert.Contains(t, err.Error(), "server address is required")
	})

	t.Run("missing application name", func(t *testing.T) {
		profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:       true,
			ServerAddress: "http://localhost:4040",
		}, zaptest.NewLogger(t))

		require.Error(t, err)
		assert.Nil(t, profiler)
		assert.Contains(t, err.Error(), "application name is required")
	})
}

// Requires a Pyroscope server on localhost:4040; run without -short locally.
func TestNewProfilerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             true,
		ServerAddress:       "http://localhost:4040",
		ApplicationName:     "storefront-backend",
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, profiler.IsEnabled())
	assert.NoError(t, profiler.Stop())
}

func TestProfilerStopIdempotent(t *testing.T) {
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	for range 3 {
		assert.NoError(t, profiler.Stop())
	}
}

func TestProfilerStopConcurrent(t *testing.T) {
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = profiler.Stop()
		}()
	}
	wg.Wait()
}

// Turning on individual profile types must not require a live server while
// the profiler itself stays disabled; the settings just round-trip.
func TestProfilerConfigRoundTrip(t *testing.T) {
	cfg := telemetry.ProfilerConfig{
		Enabled:              false,
		ServerAddress:        "http://localhost:4040",
		ApplicationName:      "storefront-backend",
		BasicAuthUser:        "user",
		BasicAuthPassword:    "password",
		DisableGCRuns:        true,
		ProfileCPU:           true,
		ProfileAllocObjects:  true,
		ProfileAllocSpace:    true,
		ProfileInuseObjects:  true,
		ProfileInuseSpace:    true,
		ProfileGoroutines:    true,
		ProfileMutexCount:    true,
		ProfileMutexDuration: true,
		MutexProfileFraction: 10,
		ProfileBlockCount:    true,
		ProfileBlockDuration: true,
		BlockProfileRate:     10,
	}

	profiler, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, profiler)
	assert.False(t, profiler.IsEnabled())

	got := profiler.GetConfig()
	assert.Equal(t, cfg, got)

	// GetConfig returns a copy; mutating it must not affect the profiler.
	got.ApplicationName = "mutated"
	assert.Equal(t, "storefront-backend", profiler.GetConfig().ApplicationName)

	assert.NoError(t, profiler.Stop())
}

func TestProfilerProfileTypeCombos(t *testing.T) {
	combos := []telemetry.ProfilerConfig{
		{ServerAddress: "http://localhost:4040", ApplicationName: "t"},
		{ServerAddress: "http://localhost:4040", ApplicationName: "t", ProfileCPU: true},
		{ServerAddress: "http://localhost:4040", ApplicationName: "t", ProfileAllocObjects: true, ProfileAllocSpace: true},
		{ServerAddress: "http://localhost:4040", ApplicationName: "t", ProfileMutexCount: true, ProfileMutexDuration: true, MutexProfileFraction: 10},
		{ServerAddress: "http://localhost:4040", ApplicationName: "t", ProfileBlockCount: true, ProfileBlockDuration: true, BlockProfileRate: 10},
	}

	for _, cfg := range combos {
		profiler, err := telemetry.NewProfiler(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, profiler.IsEnabled())
		assert.NoError(t, profiler.Stop())
	}
}
