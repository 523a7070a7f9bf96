// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/json"
	"net/http"

	"github.com/streamfleet/streamfleet/lib/cache"
	"github.com/streamfleet/streamfleet/lib/pool"
)

// statusResponse is the /status payload.
type statusResponse struct {
	Clients     int         `json:"clients"`
	Workloads   map[int]int `json:"workloads"`
	LeastLoaded *int        `json:"least_loaded,omitempty"`
	Cache       cache.Stats `json:"cache"`
}

// NewHandler builds the status routes. The pool and cache manager are
// read-only here: the web surface observes the orchestrator's state,
// it never mutates it.
func NewHandler(clientPool *pool.Pool, cacheManager *cache.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writer.WriteHeader(http.StatusOK)
		writer.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /status", func(writer http.ResponseWriter, request *http.Request) {
		response := statusResponse{
			Clients:   clientPool.Len(),
			Workloads: clientPool.Workloads(),
			Cache:     cacheManager.Stats(),
		}
		if id, ok := clientPool.LeastLoaded(); ok {
			response.LeastLoaded = &id
		}

		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(response); err != nil {
			http.Error(writer, "encoding status", http.StatusInternalServerError)
		}
	})

	return mux
}
