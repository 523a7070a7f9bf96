// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamfleet/streamfleet/lib/config"
)

// BotClient is what the pool needs from a client handle: an async
// start and stop, each of which may fail. The concrete implementation
// lives in lib/botapi; tests substitute fakes.
type BotClient interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Factory builds the client handle for one configured identifier.
// Construction must not perform network I/O — that belongs in
// BotClient.Start.
type Factory func(id int, cfg config.ClientConfig) (BotClient, error)

// Record pairs a client identifier with its handle. The pool
// exclusively owns the handle once started.
type Record struct {
	ID     int
	Client BotClient
}

// Config configures a Pool.
type Config struct {
	// Clients is the full client configuration, including the
	// primary entry (identifier 0).
	Clients map[int]config.ClientConfig

	// Factory builds client handles. Required.
	Factory Factory

	// StartTimeout bounds one client start attempt. Defaults to
	// 30 seconds if zero.
	StartTimeout time.Duration

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Pool is the set of running client records plus the workload
// registry. Safe for concurrent use.
type Pool struct {
	configs      map[int]config.ClientConfig
	factory      Factory
	startTimeout time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	records   map[int]*Record
	workloads map[int]int
}

// New creates an empty pool. No clients are started until
// StartPrimary / StartSecondaries are called.
func New(cfg Config) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("pool: Factory is required")
	}

	startTimeout := cfg.StartTimeout
	if startTimeout == 0 {
		startTimeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		configs:      cfg.Clients,
		factory:      cfg.Factory,
		startTimeout: startTimeout,
		logger:       logger,
		records:      make(map[int]*Record),
		workloads:    make(map[int]int),
	}, nil
}

// insert adds a started record with a zero workload counter. The two
// maps are always updated together, preserving the registry/membership
// invariant.
func (p *Pool) insert(record *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[record.ID] = record
	p.workloads[record.ID] = 0
}

// Len returns the number of client records in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Get returns the record for an identifier.
func (p *Pool) Get(id int) (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.records[id]
	return record, ok
}

// Primary returns the primary client record, or nil if the primary
// has not been started.
func (p *Pool) Primary() *Record {
	record, _ := p.Get(config.PrimaryClientID)
	return record
}

// Secondaries returns all non-primary records, ordered by identifier
// so iteration (and the logs it produces) is deterministic.
func (p *Pool) Secondaries() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	secondaries := make([]*Record, 0, len(p.records))
	for id, record := range p.records {
		if id == config.PrimaryClientID {
			continue
		}
		secondaries = append(secondaries, record)
	}
	sort.Slice(secondaries, func(i, j int) bool {
		return secondaries[i].ID < secondaries[j].ID
	})
	return secondaries
}

// SetWorkload sets the workload counter for a pool member. Panics if
// the identifier has no client record: counters are invariant-linked
// to membership, so a write to an unknown identifier is a programming
// error, not a recoverable failure.
func (p *Pool) SetWorkload(id, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.records[id]; !ok {
		panic(fmt.Sprintf("pool: SetWorkload on unknown client %d", id))
	}
	p.workloads[id] = value
}

// Workload returns the workload counter for a pool member. Panics if
// the identifier has no client record.
func (p *Pool) Workload(id int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.workloads[id]
	if !ok {
		panic(fmt.Sprintf("pool: Workload on unknown client %d", id))
	}
	return value
}

// Workloads returns a snapshot copy of the workload registry.
func (p *Pool) Workloads() map[int]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[int]int, len(p.workloads))
	for id, value := range p.workloads {
		snapshot[id] = value
	}
	return snapshot
}

// LeastLoaded returns the identifier with the smallest workload
// counter, breaking ties toward the lower identifier. Returns false
// if the pool is empty.
func (p *Pool) LeastLoaded() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	best, found := 0, false
	for id, value := range p.workloads {
		if !found || value < p.workloads[best] || (value == p.workloads[best] && id < best) {
			best, found = id, true
		}
	}
	return best, found
}
