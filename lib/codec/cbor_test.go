// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleHello struct {
	User  string `cbor:"user,omitempty"`
	Board string `cbor:"board"`
	Count int    `cbor:"count"`
}

type sampleHelloV2 struct {
	User     string `cbor:"user,omitempty"`
	Board    string `cbor:"board"`
	Count    int    `cbor:"count"`
	Location string `cbor:"location"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	t.Parallel()
	original := sampleHello{User: "cdba", Board: "db845c", Count: 3}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleHello
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	message := sampleHello{User: "cdba", Board: "rb3", Count: 1}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalIgnoresUnknownKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(sampleHelloV2{Board: "rb5", Count: 2, Location: "rack 4"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleHello
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with extra key: %v", err)
	}
	if decoded.Board != "rb5" || decoded.Count != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestUnmarshalRejectsDeepNesting(t *testing.T) {
	t.Parallel()
	// 16 nested single-element arrays: 0x81 repeated, then 0x00.
	data := append(bytes.Repeat([]byte{0x81}, 16), 0x00)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected error for nesting beyond the configured limit")
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	data, err := Marshal(sampleHello{Board: "sdm845"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"sdm845"`) {
		t.Errorf("diagnostic %q does not mention the board", notation)
	}
}
