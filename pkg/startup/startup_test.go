package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, needs ...string) Func {
	return Func{
		Name:    name,
		Needs:   needs,
		StartFn: func(context.Context) error { r.events = append(r.events, "start "+name); return nil },
		StopFn:  func(context.Context) error { r.events = append(r.events, "stop "+name); return nil },
	}
}

func TestStartup_DependencyOrder(t *testing.T) {
	rec := &recorder{}
	s := New(testLogger(), 1, time.Millisecond)
	s.Add(rec.dep("http", "postgres", "redis"))
	s.Add(rec.dep("migrations", "postgres"))
	s.Add(rec.dep("postgres"))
	s.Add(rec.dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start postgres", "start redis", "start http", "start migrations"}, rec.events)
	assert.Equal(t, StatusStarted, s.Status("http"))

	rec.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop migrations", "stop http", "stop redis", "stop postgres"}, rec.events)
	assert.Equal(t, StatusStopped, s.Status("postgres"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := New(testLogger(), 3, time.Millisecond)
	s.Add(Func{Name: "postgres", StartFn: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	s := New(testLogger(), 2, time.Millisecond)
	s.Add(Func{Name: "postgres", StartFn: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StatusFailed, s.Status("postgres"))
}

func TestStartup_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(testLogger(), 5, time.Hour)
	s.Add(Func{Name: "postgres", StartFn: func(context.Context) error {
		cancel()
		return errors.New("down")
	}})

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}

func TestStartup_InvalidGraph(t *testing.T) {
	rec := &recorder{}

	tests := []struct {
		name    string
		deps    []Func
		wantErr string
	}{
		{"unknown dependency", []Func{rec.dep("http", "kafka")}, "unknown startup dependency 'kafka'"},
		{"cycle", []Func{rec.dep("a", "b"), rec.dep("b", "a")}, "cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testLogger(), 1, time.Millisecond)
			for _, d := range tt.deps {
				s.Add(d)
			}
			err := s.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStartup_StopContinuesPastFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("flush failed")
	s := New(testLogger(), 1, time.Millisecond)
	s.Add(rec.dep("postgres"))
	s.Add(Func{Name: "kafka", StartFn: func(context.Context) error { return nil }, StopFn: func(context.Context) error { return boom }})

	require.NoError(t, s.Start(context.Background()))
	rec.events = nil

	assert.ErrorIs(t, s.Stop(context.Background()), boom)
	assert.Equal(t, []string{"stop postgres"}, rec.events)
	assert.Equal(t, StatusStarted, s.Status("kafka"))
}
