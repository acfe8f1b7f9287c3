package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

func TestStreamEmitterEnforcesOrder(t *testing.T) {
	out := make(chan domain.StreamEvent, 8)
	emitter := newStreamEmitter(context.Background(), out)

	if emitter.chunk("early") {
		t.Fatal("chunk before meta must be rejected")
	}
	if emitter.done() {
		t.Fatal("done before meta must be rejected")
	}
	if !emitter.meta(domain.StreamMeta{Category: domain.CategoryExam}) {
		t.Fatal("meta rejected")
	}
	if emitter.meta(domain.StreamMeta{}) {
		t.Fatal("second meta must be rejected")
	}
	if !emitter.chunk("a") || !emitter.chunk("") || !emitter.chunk("b") {
		t.Fatal("chunks rejected")
	}
	if !emitter.done() {
		t.Fatal("done rejected")
	}
	if emitter.chunk("late") || emitter.fail("late") {
		t.Fatal("events after terminal must be rejected")
	}
	emitter.close()

	var kinds []string
	for event := range out {
		kinds = append(kinds, string(event.Kind))
	}
	if got := strings.Join(kinds, ","); got != "meta,chunk,chunk,done" {
		t.Fatalf("unexpected sequence %s", got)
	}
}

func TestStreamEmitterStopsOnCancel(t *testing.T) {
	out := make(chan domain.StreamEvent)
	ctx, cancel := context.WithCancel(context.Background())
	emitter := newStreamEmitter(ctx, out)
	cancel()

	if emitter.meta(domain.StreamMeta{}) {
		t.Fatal("meta must not be sent after cancellation")
	}
	if emitter.fail("boom") {
		t.Fatal("terminal event must not be sent after cancellation")
	}
	emitter.close()
	if _, ok := <-out; ok {
		t.Fatal("expected closed channel without events")
	}
}

func TestSplitWordsReassembles(t *testing.T) {
	text := "one two  three\nfour five"
	parts := splitWords(text, 2)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %q", parts)
	}
	if strings.Join(parts, "") != text {
		t.Fatalf("parts do not reassemble: %q", parts)
	}
}
