package worklog

import (
	"errors"
	"path/filepath"
	"testing"
)

func BenchmarkWorkLogAddBatch(b *testing.B) {
	log := NewWorkLog[Item](filepath.Join(b.TempDir(), "work.log"), u64Hook(b), WithDisposal(DisposalNone))
	if err := log.Start(); err != nil {
		b.Fatalf("start: %v", err)
	}
	defer log.Close()

	items := make([]Item, 100)
	for i := range items {
		items[i] = u64Item(b, uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := log.Add(TxID(i), items...); err != nil {
			b.Fatalf("add: %v", err)
		}
	}
}

func BenchmarkWorkLogNext(b *testing.B) {
	log := NewWorkLog[Item](filepath.Join(b.TempDir(), "work.log"), u64Hook(b), WithDisposal(DisposalNone))
	if err := log.Start(); err != nil {
		b.Fatalf("start: %v", err)
	}
	defer log.Close()

	items := make([]Item, b.N)
	for i := range items {
		items[i] = u64Item(b, uint64(i))
	}
	if err := log.Add(1, items...); err != nil {
		b.Fatalf("add: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := log.Next(); err != nil && !errors.Is(err, ErrNoEntries) {
			b.Fatalf("next: %v", err)
		}
	}
}
