// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package circular_test

import (
	"testing"

	"github.com/hrissan/tls/circular"
)

func TestBufferFIFO(t *testing.T) {
	var b circular.Buffer[int]
	if b.Len() != 0 {
		t.Fatal("new buffer not empty")
	}
	for i := 0; i < 100; i++ {
		b.PushBack(i)
	}
	for i := 0; i < 100; i++ {
		if b.Front() != i {
			t.Fatalf("front %d, expected %d", b.Front(), i)
		}
		if got := b.PopFront(); got != i {
			t.Fatalf("popped %d, expected %d", got, i)
		}
	}
	if b.Len() != 0 {
		t.Fatal("buffer not drained")
	}
}

func TestBufferWrapsAround(t *testing.T) {
	var b circular.Buffer[[]byte]
	b.Reserve(4)
	// push/pop repeatedly so positions pass the capacity boundary
	for round := 0; round < 50; round++ {
		b.PushBack([]byte{byte(round)})
		b.PushBack([]byte{byte(round), 1})
		if got := b.PopFront(); got[0] != byte(round) {
			t.Fatalf("round %d wrong element", round)
		}
		if got := *b.FrontRef(); len(got) != 2 {
			t.Fatalf("round %d wrong front", round)
		}
		b.PopFront()
	}
}

func TestBufferGrows(t *testing.T) {
	var b circular.Buffer[int]
	for i := 0; i < 1000; i++ {
		b.PushBack(i)
	}
	if b.Len() != 1000 {
		t.Fatalf("len %d", b.Len())
	}
	s1, s2 := b.Slices()
	if len(s1)+len(s2) != 1000 {
		t.Fatal("slices do not cover content")
	}
	b.Clear()
	if b.Len() != 0 {
		t.Fatal("clear failed")
	}
}
