package graph

import (
	"math/rand"
	"testing"
)

const benchRegions = 1 << 14

var benchDataset = func() [][]VirtualRegionId {
	r := rand.New(rand.NewSource(1))
	out := make([][]VirtualRegionId, 1<<12)
	for i := range out {
		out[i] = []VirtualRegionId{
			VirtualRegionId(r.Intn(benchRegions)),
			VirtualRegionId(r.Intn(benchRegions)),
			VirtualRegionId(r.Intn(benchRegions)),
		}
	}
	return out
}()

func BenchmarkAddTransaction(b *testing.B) {
	g := New(1024, 10, 1, 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.AddTransaction(benchDataset[i&(len(benchDataset)-1)], 1)
	}
}

func BenchmarkAddTransactionParallel(b *testing.B) {
	g := New(1024, 10, 1, 0)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			g.AddTransaction(benchDataset[i&(len(benchDataset)-1)], 1)
			i++
		}
	})
}

func BenchmarkTopHotRegions(b *testing.B) {
	g := New(1024, 10, 1, 0)
	for _, tx := range benchDataset {
		g.AddTransaction(tx, 1)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.TopHotRegions()
	}
}

func BenchmarkHotClumps(b *testing.B) {
	g := New(1024, 10, 1, 0)
	for _, tx := range benchDataset {
		g.AddTransaction(tx, 1)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.HotClumps(0)
	}
}
