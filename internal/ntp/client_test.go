package ntp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
)

func validResponse(offset time.Duration) *ntp.Response {
	return &ntp.Response{
		ClockOffset:    offset,
		Stratum:        2,
		RTT:            10 * time.Millisecond,
		Precision:      time.Microsecond,
		RootDelay:      5 * time.Millisecond,
		RootDispersion: 5 * time.Millisecond,
		Leap:           ntp.LeapNoWarning,
		ReferenceTime:  time.Now().Add(offset).Add(-time.Minute),
		Time:           time.Now().Add(offset),
	}
}

func TestClient_SyncFallsThroughServers(t *testing.T) {
	tests := []struct {
		name       string
		answers    map[string]*ntp.Response
		wantSynced bool
		wantOffset time.Duration
	}{
		{
			name: "first server fails, second answers",
			answers: map[string]*ntp.Response{
				"b": validResponse(2 * time.Second),
			},
			wantSynced: true,
			wantOffset: 2 * time.Second,
		},
		{
			name: "invalid response is skipped",
			answers: map[string]*ntp.Response{
				"a": {Stratum: 0, Leap: ntp.LeapNotInSync},
				"b": validResponse(-time.Second),
			},
			wantSynced: true,
			wantOffset: -time.Second,
		},
		{name: "no server answers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(Options{Servers: []string{"a", "b"}})
			var asked []string
			c.query = func(server string, _ ntp.QueryOptions) (*ntp.Response, error) {
				asked = append(asked, server)
				if r, ok := tt.answers[server]; ok {
					return r, nil
				}
				return nil, errors.New("i/o timeout")
			}

			assert.Equal(t, tt.wantSynced, c.syncOnce())
			assert.Equal(t, tt.wantSynced, c.Synced())
			assert.Equal(t, tt.wantOffset, c.Offset())
			assert.NotEmpty(t, asked)
		})
	}
}

func TestClient_NowAppliesOffset(t *testing.T) {
	c := NewClient(Options{})
	c.offset.Store(int64(time.Hour))

	got := c.NowUnixMilli()
	want := time.Now().Add(time.Hour).UnixMilli()
	assert.InDelta(t, want, got, 1000)
	assert.InDelta(t, time.Now().UnixMilli(), NewLocalTimeProvider().NowUnixMilli(), 1000)
}

func TestClient_StartStop(t *testing.T) {
	c := NewClient(Options{Servers: []string{"a"}, SyncInterval: 10 * time.Millisecond})
	calls := make(chan struct{}, 16)
	c.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return validResponse(0), nil
	}

	c.Start(context.Background())
	c.Start(context.Background())
	assert.True(t, c.Synced())

	assert.Eventually(t, func() bool { return len(calls) >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	assert.NotPanics(t, c.Stop)
}
