// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"bytes"
	"testing"

	"github.com/streamfleet/streamfleet/lib/codec"
)

type sample struct {
	Name string `cbor:"name"`
	Size int64  `cbor:"size"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{Name: "video.mkv", Size: 1 << 30}

	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	// Map encodings must be byte-identical regardless of insertion
	// order, otherwise blob comparison in the store breaks.
	a, err := codec.Marshal(map[string]int{"x": 1, "y": 2, "z": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := codec.Marshal(map[string]int{"z": 3, "y": 2, "x": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("same map encoded to different bytes:\n%x\n%x", a, b)
	}
}

func TestDecodeIntoAny(t *testing.T) {
	data, err := codec.Marshal(map[string]any{"name": "clip"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out any
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", out)
	}
	if m["name"] != "clip" {
		t.Errorf("name = %v, want %q", m["name"], "clip")
	}
}
