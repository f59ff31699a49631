package client

import (
	"context"
	"testing"
	"time"
)

// BenchmarkProvider_BuildRequest benchmarks reverse-lookup request construction.
func BenchmarkProvider_BuildRequest(b *testing.B) {
	p, _ := NewHTTPProvider("https://api.mapbox.com", "pk.bench-token", 2*time.Second)
	ctx := context.Background()
	params := Params{Latitude: -15.6, Longitude: -56.1, Language: "pt-BR"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.buildRequest(ctx, DefaultReversePath, params)
	}
}

// BenchmarkMapResult benchmarks feature-collection decoding and projection.
func BenchmarkMapResult(b *testing.B) {
	body := []byte(cuiabaResponse)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MapResult(body)
	}
}

// BenchmarkCategorizeError benchmarks error classification for metrics labels.
func BenchmarkCategorizeError(b *testing.B) {
	err := context.DeadlineExceeded

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CategorizeError(err)
	}
}

// BenchmarkStatusLabel benchmarks status code to label conversion.
func BenchmarkStatusLabel(b *testing.B) {
	codes := []int{200, 401, 429, 500, 503}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = statusLabel(codes[i%len(codes)])
	}
}
