package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type limitErr struct{ limited bool }

func (e limitErr) Error() string     { return "upstream refused" }
func (e limitErr) RateLimited() bool { return e.limited }

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, RateLimitFloor: 10 * time.Second, BackoffMultiplier: 2}
	tests := []struct {
		attempt int
		limited bool
		want    time.Duration
	}{
		{1, false, time.Second},
		{2, false, 2 * time.Second},
		{3, false, 4 * time.Second},
		{1, true, 10 * time.Second},
		{5, true, 16 * time.Second},
		{0, false, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt, tt.limited); got != tt.want {
			t.Errorf("Delay(%d, %v) = %v, want %v", tt.attempt, tt.limited, got, tt.want)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2}
	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Expected success on third call, got err=%v calls=%d", err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	calls := 0
	cause := limitErr{}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return cause
	})
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
}

func TestDoPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), Default(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 || err != cause {
		t.Errorf("Expected one call returning the cause, got calls=%d err=%v", calls, err)
	}
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	err := Do(ctx, p, func(context.Context) error {
		cancel()
		return limitErr{limited: true}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(limitErr{limited: true}) {
		t.Error("Expected rate-limited error to be recognized")
	}
	if IsRateLimited(errors.New("plain")) || IsRateLimited(limitErr{}) {
		t.Error("Unexpected rate-limit signal")
	}
}

func TestDoRaisesRateLimitedWaits(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, RateLimitFloor: 50 * time.Millisecond, BackoffMultiplier: 2}
	tests := []struct {
		name    string
		limited bool
		min     time.Duration
		max     time.Duration
	}{
		{"plain", false, 0, 40 * time.Millisecond},
		{"rate limited", true, 50 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stamps []time.Time
			err := Do(context.Background(), p, func(context.Context) error {
				stamps = append(stamps, time.Now())
				return limitErr{limited: tt.limited}
			})
			if err == nil || len(stamps) != 2 {
				t.Fatalf("Expected two failing calls, got %d (err=%v)", len(stamps), err)
			}
			if wait := stamps[1].Sub(stamps[0]); wait < tt.min || wait > tt.max {
				t.Errorf("Wait %v outside [%v, %v]", wait, tt.min, tt.max)
			}
		})
	}
}
