package core

import (
	"fmt"
	"testing"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	r, ctx := newTestRelay(b)

	sender := join(b, r, ctx, "sender")
	joined := []*testClient{sender}
	for i := range recipients {
		joined = append(joined, join(b, r, ctx, fmt.Sprintf("peer%d", i), joined...))
	}

	// Drain every recipient but the first to avoid pipe backpressure.
	target := joined[1]
	for _, c := range joined[2:] {
		go func(cl *testClient) {
			for range cl.in {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.send(b, proto.Envelope{Type: proto.TypeMsg, Text: "payload"})
		mustEnvelope(b, target.in, proto.TypeMsg, "payload")
	}
}

func BenchmarkBroadcast_10(b *testing.B) { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_50(b *testing.B) { benchmarkBroadcast(b, 50) }
