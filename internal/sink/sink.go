// Package sink defines the relay destination contract and the progress
// signals a destination may report while sending.
package sink

import (
	"context"
	"errors"
	"math"

	"fetchrelay/internal/media"
)

var ErrNotConnected = errors.New("relay sink not connected")

type Item struct {
	Path          string
	Name          string
	Caption       string
	Size          int64
	ForceDocument bool
	Media         *media.Info
}

type Sink interface {
	Name() string
	Connect(ctx context.Context) error
	Ready() bool
	Send(ctx context.Context, item Item, report func(Signal)) error
}

// Signal is one progress report in whatever shape the destination's client
// produces it.
type Signal interface {
	signal()
}

// BytePair is a (sent, total) pair.
type BytePair struct {
	Sent  int64
	Total int64
}

// Fraction is a completed ratio in [0, 1].
type Fraction float64

// Absolute is a count of bytes sent.
type Absolute int64

// Loaded is an object-style report; Total may be zero when unknown.
type Loaded struct {
	Loaded int64
	Total  int64
}

func (BytePair) signal() {}
func (Fraction) signal() {}
func (Absolute) signal() {}
func (Loaded) signal()   {}

// FromNumber classifies a lone number: values up to 1 are ratios, larger
// ones are byte counts.
func FromNumber(v float64) Signal {
	if v <= 1 {
		return Fraction(v)
	}
	return Absolute(math.Round(v))
}

type Progress struct {
	Uploaded int64
	Total    int64
}

// Normalize converts a signal into bytes uploaded out of total, using size
// when the signal carries no total of its own.
func Normalize(sig Signal, size int64) Progress {
	switch s := sig.(type) {
	case BytePair:
		total := s.Total
		if total <= 0 {
			total = size
		}
		return Progress{Uploaded: s.Sent, Total: total}
	case Fraction:
		base := max(size, 1)
		return Progress{Uploaded: int64(math.Round(float64(s) * float64(base))), Total: size}
	case Absolute:
		return Progress{Uploaded: int64(s), Total: size}
	case Loaded:
		total := s.Total
		if total <= 0 {
			total = size
		}
		return Progress{Uploaded: s.Loaded, Total: total}
	}

	return Progress{Total: size}
}

// Percent returns the rounded share uploaded, capped at 99 since only a
// finished send counts as 100. It returns -1 when total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}

	pct := math.Round(float64(p.Uploaded) / float64(p.Total) * 100)
	return int(math.Min(99, math.Max(0, pct)))
}

// None is the sink used when no destination is configured. It never
// becomes ready.
type None struct{}

func (None) Name() string { return "none" }

func (None) Connect(context.Context) error { return ErrNotConnected }

func (None) Ready() bool { return false }

func (None) Send(context.Context, Item, func(Signal)) error { return ErrNotConnected }
