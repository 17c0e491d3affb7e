// Package useragent supplies browser User-Agent strings. Search engines and
// many content sites reject Go's default client identifier, so every
// outbound request carries one of these.
package useragent

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
)

// DefaultPool holds desktop browser User-Agents. The first entry is the one
// used when rotation is disabled.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// Strategy selects how Next picks from the pool.
type Strategy string

const (
	StrategyFixed      Strategy = "fixed"
	StrategySequential Strategy = "sequential"
	StrategyRandom     Strategy = "random"
)

// ParseStrategy maps a config value to a Strategy. Empty means fixed.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyFixed:
		return StrategyFixed, nil
	case StrategySequential, StrategyRandom:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown user agent strategy %q", s)
}

// Pool is a fixed set of User-Agents. It is safe for concurrent use.
type Pool struct {
	uas      []string
	strategy Strategy
	counter  atomic.Uint64
}

// NewPool creates a Pool. An empty uas falls back to DefaultPool.
func NewPool(uas []string, strategy Strategy) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	if strategy == "" {
		strategy = StrategyFixed
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied, strategy: strategy}
}

// Next returns a User-Agent according to the pool's strategy.
func (p *Pool) Next() string {
	switch p.strategy {
	case StrategySequential:
		return p.sequential()
	case StrategyRandom:
		return p.random()
	default:
		return p.uas[0]
	}
}

func (p *Pool) sequential() string {
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

func (p *Pool) random() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.sequential()
	}
	return p.uas[n.Int64()]
}

// All returns a copy of the pool's User-Agents.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
