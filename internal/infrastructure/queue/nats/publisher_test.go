package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
	})
}

func TestPublishSendsTraceJSON(t *testing.T) {
	var subject string
	var payload []byte
	p := &TracePublisher{
		subject: DefaultTraceSubject,
		publish: func(s string, data []byte) error {
			subject, payload = s, data
			return nil
		},
	}

	trace := domain.RetrievalTrace{ID: "t1", Attempt: 2, Query: "nit cutoff", Category: domain.CategoryPredictor, Verdict: domain.VerdictPartial}
	if err := p.Publish(context.Background(), trace); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if subject != "rag.traces" {
		t.Fatalf("unexpected subject %q", subject)
	}
	var decoded domain.RetrievalTrace
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ID != "t1" || decoded.Attempt != 2 || decoded.Verdict != domain.VerdictPartial {
		t.Fatalf("unexpected decoded trace: %+v", decoded)
	}
}

func TestPublishRetriesDisconnectAndWrapsTemporary(t *testing.T) {
	calls := 0
	p := &TracePublisher{
		subject:  DefaultTraceSubject,
		executor: testExecutor(),
		publish: func(string, []byte) error {
			calls++
			return nats.ErrConnectionClosed
		},
	}

	err := p.Publish(context.Background(), domain.RetrievalTrace{ID: "t"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPublishPermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	errBadSubject := errors.New("nats: invalid subject")
	p := &TracePublisher{
		subject:  DefaultTraceSubject,
		executor: testExecutor(),
		publish: func(string, []byte) error {
			calls++
			return errBadSubject
		},
	}

	err := p.Publish(context.Background(), domain.RetrievalTrace{ID: "t"})
	if !errors.Is(err, errBadSubject) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestRecordRetrievalSwallowsErrors(t *testing.T) {
	p := &TracePublisher{
		subject: DefaultTraceSubject,
		publish: func(string, []byte) error { return nats.ErrNoServers },
	}
	p.RecordRetrieval(context.Background(), domain.RetrievalTrace{ID: "t"})
}

func TestRecordRetrievalUsesRecordOperationBudget(t *testing.T) {
	calls := 0
	p := &TracePublisher{
		subject: DefaultTraceSubject,
		executor: resilience.NewExecutor(resilience.Config{
			Retry:      resilience.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
			Operations: map[string]resilience.RetryPolicy{RecordOperation: {MaxAttempts: 1}},
		}),
		publish: func(string, []byte) error {
			calls++
			return nats.ErrConnectionClosed
		},
	}

	p.RecordRetrieval(context.Background(), domain.RetrievalTrace{ID: "t"})
	if calls != 1 {
		t.Fatalf("expected a single attempt on the retrieval path, got %d", calls)
	}
}

func TestClassifyNATSErrorContextIsNotRecorded(t *testing.T) {
	class := classifyNATSError(context.Canceled)
	if class.Retryable || class.RecordFailure {
		t.Fatalf("unexpected classification: %+v", class)
	}
}
