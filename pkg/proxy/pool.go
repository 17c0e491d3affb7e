// Package proxy rotates outbound requests across a list of proxy servers
// and benches the ones that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when marking a proxy the pool does not hold.
var ErrNotFound = errors.New("proxy: not found in pool")

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures before a proxy is benched. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy is skipped. Default 5m.
	Cooldown time.Duration
}

type entry struct {
	url          *url.URL
	failures     int
	successes    int
	benchedUntil time.Time
}

// Pool hands out proxies round-robin. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	byURL       map[string]*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool. Zero config values select the defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		byURL:       make(map[string]*entry),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile adds the proxies listed in path, one per line. Blank lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and adds them to the pool. A missing scheme
// defaults to http. Duplicates are ignored. Nothing is added if any URL
// fails to parse.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", raw)
		}
		parsed = append(parsed, u)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range parsed {
		key := u.String()
		if _, ok := p.byURL[key]; ok {
			continue
		}
		e := &entry{url: u}
		p.entries = append(p.entries, e)
		p.byURL[key] = e
	}
	return nil
}

// Len returns the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil when the pool is
// empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if e.benchedUntil.IsZero() {
			return e.url
		}
		if now.After(e.benchedUntil) {
			e.benchedUntil = time.Time{}
			e.failures = 0
			return e.url
		}
	}
	return nil
}

// MarkSuccess records a request that went through the proxy and lowers its
// failure count.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.mark(u, func(e *entry) {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
	})
}

// MarkFailure records a failed request. After MaxFailures the proxy is
// benched for the cooldown.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.mark(u, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.benchedUntil = p.now().Add(p.cooldown)
		}
	})
}

func (p *Pool) mark(u *url.URL, update func(*entry)) error {
	if u == nil {
		return errors.New("proxy: nil url")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byURL[u.String()]
	if !ok {
		return ErrNotFound
	}
	update(e)
	return nil
}
