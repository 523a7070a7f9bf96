// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamfleet/streamfleet/lib/config"
)

// StartPrimary starts the mandatory primary client (identifier 0)
// synchronously and inserts it into the pool with a zero workload
// counter. Any failure here is fatal: every other component depends
// on the primary client, so the caller must abort startup.
func (p *Pool) StartPrimary(ctx context.Context) (*Record, error) {
	cfg, ok := p.configs[config.PrimaryClientID]
	if !ok {
		return nil, fmt.Errorf("pool: no configuration for primary client %d", config.PrimaryClientID)
	}

	client, err := p.factory(config.PrimaryClientID, cfg)
	if err != nil {
		return nil, fmt.Errorf("pool: building primary client: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, p.startTimeout)
	defer cancel()

	if err := client.Start(startCtx); err != nil {
		return nil, fmt.Errorf("pool: starting primary client: %w", err)
	}

	record := &Record{ID: config.PrimaryClientID, Client: client}
	p.insert(record)
	p.logger.Info("primary client started", "client_id", config.PrimaryClientID)
	return record, nil
}

// StartSecondaries starts every configured secondary client
// concurrently and merges the successful ones into the pool, each
// with a zero workload counter.
//
// All starts are issued before any is awaited (fan-out), and the call
// returns only after every attempt has settled (fan-in). A failure in
// one attempt never cancels the others, and no combination of
// secondary failures is an error: the pool degrades to whatever
// subset started, down to the primary alone.
func (p *Pool) StartSecondaries(ctx context.Context) {
	secondaries := make(map[int]config.ClientConfig, len(p.configs))
	for id, cfg := range p.configs {
		if id == config.PrimaryClientID {
			continue
		}
		secondaries[id] = cfg
	}

	if len(secondaries) == 0 {
		p.logger.Info("no secondary clients configured, using primary client only")
		return
	}

	var wg sync.WaitGroup
	for id, cfg := range secondaries {
		wg.Add(1)
		go func(id int, cfg config.ClientConfig) {
			defer wg.Done()
			if record := p.startSecondary(ctx, id, cfg); record != nil {
				p.insert(record)
			}
		}(id, cfg)
	}
	wg.Wait()

	if total := p.Len(); total > 1 {
		p.logger.Info("multi-client mode enabled", "clients", total)
	} else {
		p.logger.Info("no secondary clients started, using primary client only")
	}
}

// startSecondary starts one secondary client. On any failure it logs
// the identifier and cause and returns nil — errors never escape this
// boundary, because a secondary failure only degrades the pool.
func (p *Pool) startSecondary(ctx context.Context, id int, cfg config.ClientConfig) *Record {
	p.logger.Info("starting secondary client", "client_id", id)

	client, err := p.factory(id, cfg)
	if err != nil {
		p.logger.Error("failed to build secondary client", "client_id", id, "error", err)
		return nil
	}

	startCtx, cancel := context.WithTimeout(ctx, p.startTimeout)
	defer cancel()

	if err := client.Start(startCtx); err != nil {
		p.logger.Error("failed to start secondary client", "client_id", id, "error", err)
		return nil
	}

	p.logger.Info("secondary client started", "client_id", id)
	return &Record{ID: id, Client: client}
}
