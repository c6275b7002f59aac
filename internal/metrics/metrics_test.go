package metrics

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if got := Key(MetricAdmitted, nil); got != MetricAdmitted {
		t.Errorf("expected bare name, got %q", got)
	}

	got := Key(MetricDeadLetter, Labels{"reason": "schema_invalid", "provider": "lob"})
	want := "webhook_dead_letter|provider=lob,reason=schema_invalid"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	sink.Incr(ctx, MetricAdmitted, Labels{"provider": "smartlead"})
	sink.Incr(ctx, MetricAdmitted, Labels{"provider": "smartlead"})
	sink.Incr(ctx, MetricAdmitted, Labels{"provider": "lob"})

	snap, err := sink.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap["webhook_admitted|provider=smartlead"] != 2 {
		t.Errorf("expected 2 smartlead admissions, got %d", snap["webhook_admitted|provider=smartlead"])
	}
	if snap["webhook_admitted|provider=lob"] != 1 {
		t.Errorf("expected 1 lob admission, got %d", snap["webhook_admitted|provider=lob"])
	}
}

func setupRedisSink(t *testing.T) *RedisSink {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRedisSink(client, logger)
}

func TestRedisSink_IncrAndSnapshot(t *testing.T) {
	sink := setupRedisSink(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sink.Incr(ctx, MetricReplayed, Labels{"provider": "heyreach", "reason": "bulk"})
	}
	sink.Incr(ctx, MetricReplayFailed, nil)

	snap, err := sink.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap["replay_replayed|provider=heyreach,reason=bulk"] != 3 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
	if snap[MetricReplayFailed] != 1 {
		t.Errorf("expected 1 replay failure, got %d", snap[MetricReplayFailed])
	}
}

func TestEvaluator_FiresOncePerWindow(t *testing.T) {
	inner := NewMemorySink()
	var signals []Signal

	eval := NewEvaluator(inner, []Threshold{
		{Metric: MetricDeadLetter, Limit: 2, Window: time.Minute},
	}, func(s Signal) { signals = append(signals, s) })

	now := time.Unix(1_700_000_000, 0)
	eval.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		eval.Incr(ctx, MetricDeadLetter, Labels{"provider": "lob"})
	}

	if len(signals) != 1 {
		t.Fatalf("expected exactly one signal, got %d", len(signals))
	}
	if signals[0].Observed != 3 || signals[0].Threshold != 2 {
		t.Errorf("unexpected signal: %+v", signals[0])
	}

	// Counters still pass through to the inner sink.
	snap, _ := inner.Snapshot(ctx)
	if snap["webhook_dead_letter|provider=lob"] != 5 {
		t.Errorf("expected 5 inner increments, got %d", snap["webhook_dead_letter|provider=lob"])
	}
}

func TestEvaluator_NewWindowFiresAgain(t *testing.T) {
	var signals []Signal
	eval := NewEvaluator(NewMemorySink(), []Threshold{
		{Metric: MetricSignatureRejected, Limit: 1, Window: time.Minute},
	}, func(s Signal) { signals = append(signals, s) })

	now := time.Unix(1_700_000_000, 0)
	eval.now = func() time.Time { return now }

	ctx := context.Background()
	eval.Incr(ctx, MetricSignatureRejected, nil)
	eval.Incr(ctx, MetricSignatureRejected, nil)

	now = now.Add(2 * time.Minute)
	eval.Incr(ctx, MetricSignatureRejected, nil)
	eval.Incr(ctx, MetricSignatureRejected, nil)

	if len(signals) != 2 {
		t.Fatalf("expected a signal per window, got %d", len(signals))
	}
}

func TestEvaluator_IgnoresUnconfiguredMetrics(t *testing.T) {
	fired := false
	eval := NewEvaluator(NewMemorySink(), []Threshold{
		{Metric: MetricDeadLetter, Limit: 0, Window: time.Minute},
	}, func(Signal) { fired = true })

	eval.Incr(context.Background(), MetricAdmitted, nil)

	if fired {
		t.Error("unconfigured metric must not fire a signal")
	}
}
