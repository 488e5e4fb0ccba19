package rag

import (
	"math"
	"testing"
)

func TestCosineIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosine(v, v); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1, got %f", got)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	if got := cosine([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("zero vector must score 0, got %f", got)
	}
	if math.IsNaN(cosine([]float32{0, 0}, []float32{0, 0})) {
		t.Fatal("zero vectors must never produce NaN")
	}
}

func TestTopChunksOrdering(t *testing.T) {
	query := []float32{1, 0}
	chunks := []string{"far", "close", "middle"}
	embeddings := [][]float32{
		{0, 1},
		{1, 0},
		{1, 1},
	}
	got := TopChunks(query, chunks, embeddings, 2)
	if len(got) != 2 || got[0] != "close" || got[1] != "middle" {
		t.Fatalf("unexpected ranking: %#v", got)
	}
}

func TestTopChunksStableTies(t *testing.T) {
	query := []float32{1, 0}
	chunks := []string{"first", "second", "third"}
	same := []float32{1, 0}
	got := TopChunks(query, chunks, [][]float32{same, same, same}, 3)
	if got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Fatalf("tied scores must keep input order, got %#v", got)
	}
}

func TestTopChunksDegenerateInputs(t *testing.T) {
	if got := TopChunks(nil, []string{"a"}, [][]float32{{1}}, 1); got != nil {
		t.Fatalf("empty query must return nil, got %#v", got)
	}
	if got := TopChunks([]float32{1}, nil, nil, 1); got != nil {
		t.Fatalf("empty chunks must return nil, got %#v", got)
	}
	if got := TopChunks([]float32{1}, []string{"a", "b"}, [][]float32{{1}}, 1); got != nil {
		t.Fatalf("length mismatch must return nil, got %#v", got)
	}
}

func TestTopChunksKLargerThanInput(t *testing.T) {
	got := TopChunks([]float32{1}, []string{"only"}, [][]float32{{1}}, 10)
	if len(got) != 1 || got[0] != "only" {
		t.Fatalf("unexpected result: %#v", got)
	}
}
