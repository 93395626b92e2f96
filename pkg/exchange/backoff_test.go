package exchange

import (
	"testing"
	"time"
)

// fixedRandom returns a constant value for deterministic backoff tests.
type fixedRandom struct {
	v float64
}

func (r fixedRandom) Float64() float64 { return r.v }

func TestInitialTimeoutBounds(t *testing.T) {
	params := DefaultParams()

	min := NewBackoffCalculator(params, fixedRandom{0}).InitialTimeout()
	if min != params.AckTimeout {
		t.Errorf("InitialTimeout() with zero jitter = %v, want %v", min, params.AckTimeout)
	}

	almostMax := NewBackoffCalculator(params, fixedRandom{0.999999}).InitialTimeout()
	upper := time.Duration(float64(params.AckTimeout) * params.AckRandomFactor)
	if almostMax < min || almostMax > upper {
		t.Errorf("InitialTimeout() with full jitter = %v, want in [%v, %v]", almostMax, min, upper)
	}
}

func TestNextTimeoutDoubles(t *testing.T) {
	b := NewBackoffCalculator(DefaultParams(), fixedRandom{0})
	d := 2 * time.Second
	for i := 0; i < 4; i++ {
		next := b.NextTimeout(d)
		if next != d*2 {
			t.Fatalf("NextTimeout(%v) = %v, want %v", d, next, d*2)
		}
		d = next
	}
}

func TestBackoffScheduleSum(t *testing.T) {
	// The worst-case schedule 3s+6s+12s+24s+48s must stay within
	// MAX_TRANSMIT_WAIT (93s) per RFC 7252 Section 4.8.2.
	params := DefaultParams()
	b := NewBackoffCalculator(params, fixedRandom{0.999999})

	total := time.Duration(0)
	d := b.MaxTimeout()
	for i := 0; i <= params.MaxRetransmit; i++ {
		total += d
		d = b.NextTimeout(d)
	}
	if total > params.MaxTransmitWait {
		t.Errorf("worst-case schedule %v exceeds MaxTransmitWait %v", total, params.MaxTransmitWait)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("DefaultParams().Validate() error: %v", err)
	}

	bad := []TransmissionParams{
		{},
		func() TransmissionParams { p := DefaultParams(); p.AckRandomFactor = 0.5; return p }(),
		func() TransmissionParams { p := DefaultParams(); p.NStart = 0; return p }(),
		func() TransmissionParams { p := DefaultParams(); p.MaxRetransmit = -1; return p }(),
		func() TransmissionParams { p := DefaultParams(); p.ExchangeLifetime = 0; return p }(),
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: Validate() = nil, want error", i)
		}
	}
}
