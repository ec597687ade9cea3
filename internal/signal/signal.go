// Package signal turns a close-price window into momentum, moving-average
// and RSI readings and a directional decision. Everything here is a pure
// function of its inputs.
package signal

import (
	"fmt"
	"time"

	"momentum/internal/history"
)

type Decision string

const (
	DecisionLong  Decision = "LONG"
	DecisionShort Decision = "SHORT"
	// DecisionFlat means no directional gate produced a direction.
	DecisionFlat Decision = "FLAT"
	// DecisionHold means a direction was proposed but a gate vetoed it.
	DecisionHold Decision = "HOLD"
)

type Params struct {
	LookbackPeriod    int
	FastPeriod        int
	SlowPeriod        int
	RSIPeriod         int
	MomentumThreshold float64
	RSIOversold       float64
	RSIOverbought     float64

	UseMomentum     bool
	UseSMACrossover bool
	UseRSIFilter    bool
}

// Required is the number of closes Generate needs.
func (p Params) Required() int {
	n := p.LookbackPeriod
	if p.SlowPeriod > n {
		n = p.SlowPeriod
	}
	if p.FastPeriod > n {
		n = p.FastPeriod
	}
	if p.RSIPeriod+1 > n {
		n = p.RSIPeriod + 1
	}
	return n
}

type Signal struct {
	Instrument string
	Momentum   float64
	SMAFast    float64
	SMASlow    float64
	RSI        float64
	Decision   Decision
	Timestamp  time.Time
}

// Generate computes every indicator for the window and derives a decision
// from the enabled gates, which are AND-combined.
func Generate(instrument string, prices []float64, params Params, ts time.Time) (Signal, error) {
	if need := params.Required(); len(prices) < need {
		return Signal{}, fmt.Errorf("signal %s: have %d prices, need %d: %w", instrument, len(prices), need, history.ErrInsufficientHistory)
	}
	mom, err := Momentum(prices, params.LookbackPeriod)
	if err != nil {
		return Signal{}, err
	}
	fast, err := SMA(prices, params.FastPeriod)
	if err != nil {
		return Signal{}, err
	}
	slow, err := SMA(prices, params.SlowPeriod)
	if err != nil {
		return Signal{}, err
	}
	rsi, err := RSI(prices, params.RSIPeriod)
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{
		Instrument: instrument,
		Momentum:   mom,
		SMAFast:    fast,
		SMASlow:    slow,
		RSI:        rsi,
		Timestamp:  ts,
	}
	sig.Decision = decide(sig, params)
	return sig, nil
}

func decide(sig Signal, params Params) Decision {
	// +1 long, -1 short, 0 none
	direction := 0
	directional := false

	if params.UseMomentum {
		directional = true
		switch {
		case sig.Momentum > params.MomentumThreshold:
			direction = 1
		case sig.Momentum < -params.MomentumThreshold:
			direction = -1
		default:
			return DecisionFlat
		}
	}

	if params.UseSMACrossover {
		cross := 0
		switch {
		case sig.SMAFast > sig.SMASlow:
			cross = 1
		case sig.SMAFast < sig.SMASlow:
			cross = -1
		}
		if !directional {
			directional = true
			direction = cross
			if cross == 0 {
				return DecisionFlat
			}
		} else if cross != direction {
			return DecisionHold
		}
	}

	if !directional {
		return DecisionHold
	}

	if params.UseRSIFilter {
		if direction > 0 && sig.RSI >= params.RSIOverbought {
			return DecisionHold
		}
		if direction < 0 && sig.RSI <= params.RSIOversold {
			return DecisionHold
		}
	}

	if direction > 0 {
		return DecisionLong
	}
	return DecisionShort
}
