package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertd/internal/config"
	"github.com/jmylchreest/alertd/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Animation.Entrance = config.Duration(time.Millisecond)
	cfg.Animation.Exit = config.Duration(time.Millisecond)
	cfg.Internal.Enabled = false
	return cfg
}

func startService(t *testing.T, cfg *config.Config, opts Options) *Service {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	svc, err := New(cfg, opts)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc
}

func toast(p model.Priority) model.Request {
	return model.Request{Priority: p, Timeout: 0, Kind: model.KindToast, Title: "hello"}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.MaxConcurrent = 0

	_, err := New(cfg, Options{Logger: testLogger()})
	assert.Error(t, err)
}

func TestService_RequestBeforeStart(t *testing.T) {
	svc, err := New(testConfig(), Options{Logger: testLogger()})
	require.NoError(t, err)

	_, _, err = svc.Request(context.Background(), toast(model.PriorityNormal))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestService_Lifecycle(t *testing.T) {
	closed := make(chan model.CloseReason, 1)
	svc := startService(t, testConfig(), Options{
		Hooks: displayHooksClosed(closed),
	})
	ctx := context.Background()

	id, outcome, err := svc.Request(ctx, toast(model.PriorityNormal))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAdmitted, outcome)

	require.Eventually(t, func() bool {
		state, ok, err := svc.Status(ctx, id)
		return err == nil && ok && state == model.StateVisible
	}, 2*time.Second, 5*time.Millisecond)

	changed, err := svc.Close(ctx, id)
	require.NoError(t, err)
	assert.True(t, changed)

	select {
	case reason := <-closed:
		assert.Equal(t, model.CloseReasonDismissed, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never closed")
	}

	_, ok, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	tracked, ok := svc.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, DisplayStatusFinished, tracked.Status)
	assert.Equal(t, model.CloseReasonDismissed, tracked.Reason)

	changed, err = svc.Close(ctx, id)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestService_ExternalCompletion(t *testing.T) {
	svc := startService(t, testConfig(), Options{})
	ctx := context.Background()

	id, _, err := svc.Request(ctx, toast(model.PriorityNormal))
	require.NoError(t, err)

	// Duplicate and early callbacks are tolerated
	require.NoError(t, svc.ExitComplete(ctx, id))
	require.NoError(t, svc.EntranceComplete(ctx, id))
	require.NoError(t, svc.EntranceComplete(ctx, "unknown"))

	state, ok, err := svc.Status(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, model.StateClosed, state)
}

func TestService_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.PerSecond = 0.001
	cfg.Rate.Burst = 1
	svc := startService(t, cfg, Options{})
	ctx := context.Background()

	_, _, err := svc.Request(ctx, toast(model.PriorityNormal))
	require.NoError(t, err)

	_, _, err = svc.Request(ctx, toast(model.PriorityNormal))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestService_SnapshotAndApplyConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.MaxConcurrent = 1
	svc := startService(t, cfg, Options{})
	ctx := context.Background()

	_, _, err := svc.Request(ctx, toast(model.PriorityLow))
	require.NoError(t, err)
	_, outcome, err := svc.Request(ctx, toast(model.PriorityLow))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeQueued, outcome)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Live, 1)
	assert.Len(t, snap.Queued, 1)
	assert.Equal(t, 1, snap.MaxConcurrent)
	assert.Equal(t, uint64(1), snap.Stats.Queued)
	assert.Equal(t, []model.Kind{model.KindAlert, model.KindBanner, model.KindToast}, snap.Kinds)

	raised := cfg.Clone()
	raised.Admission.MaxConcurrent = 2
	require.NoError(t, svc.ApplyConfig(raised))

	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Live, 2)
	assert.Empty(t, snap.Queued)
	assert.Equal(t, 2, snap.MaxConcurrent)
	assert.Equal(t, 2, svc.Config().Admission.MaxConcurrent)
}

func TestService_ApplyConfigRejectsInvalid(t *testing.T) {
	svc := startService(t, testConfig(), Options{})

	bad := testConfig()
	bad.Pool.CleanupSchedule = "whenever"
	assert.Error(t, svc.ApplyConfig(bad))
	assert.Equal(t, config.DefaultCleanupSchedule, svc.Config().Pool.CleanupSchedule)
}

func TestService_StopClosesEverything(t *testing.T) {
	closed := make(chan model.CloseReason, 4)
	svc, err := New(testConfig(), Options{Logger: testLogger(), Hooks: displayHooksClosed(closed)})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	_, _, err = svc.Request(context.Background(), toast(model.PriorityNormal))
	require.NoError(t, err)

	svc.Stop()
	assert.False(t, svc.IsRunning())

	select {
	case reason := <-closed:
		assert.Equal(t, model.CloseReasonShutdown, reason)
	default:
		t.Fatal("expected the live notification to be closed on stop")
	}

	_, _, err = svc.Request(context.Background(), toast(model.PriorityNormal))
	assert.ErrorIs(t, err, ErrStopped)

	// Stop is idempotent
	svc.Stop()
}

func TestService_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alertd.toml")

	cfg := testConfig()
	cfg.Internal.Enabled = true
	require.NoError(t, cfg.Save(path))

	svc := startService(t, cfg, Options{ConfigPath: path, Watch: true})

	updated := cfg.Clone()
	updated.Admission.MaxConcurrent = 3
	data, err := updated.Marshal()
	require.NoError(t, err)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return svc.Config().Admission.MaxConcurrent == 3
	}, 5*time.Second, 10*time.Millisecond)

	// The reload is announced with an internal notice
	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(context.Background())
		if err != nil {
			return false
		}
		for _, entry := range snap.Live {
			if entry.Title == "Configuration Reloaded" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}
