package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

const DefaultTraceSubject = "rag.traces"

// Executor operation names. RecordOperation runs on the retrieval path.
const (
	PublishOperation = "nats.publish"
	RecordOperation  = "nats.record_retrieval"
)

// TracePublisher broadcasts retrieval traces so operators can follow the
// retrieval loop from outside the API process.
type TracePublisher struct {
	conn     *nats.Conn
	subject  string
	publish  func(subject string, data []byte) error
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*TracePublisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*TracePublisher, error) {
	conn, err := connect(url, options)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = DefaultTraceSubject
	}
	return &TracePublisher{
		conn:     conn,
		subject:  subject,
		publish:  conn.Publish,
		executor: options.ResilienceExecutor,
	}, nil
}

func connect(url string, options Options) (*nats.Conn, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("admissions-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func (p *TracePublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// RecordRetrieval publishes the trace under RecordOperation, so its retry
// budget is whatever the executor grants that operation. Failures are logged
// and not returned.
func (p *TracePublisher) RecordRetrieval(ctx context.Context, trace domain.RetrievalTrace) {
	if err := p.send(ctx, RecordOperation, trace); err != nil {
		slog.Warn("trace_publish_failed", "trace_id", trace.ID, "subject", p.subject, "error", err)
	}
}

func (p *TracePublisher) Publish(ctx context.Context, trace domain.RetrievalTrace) error {
	return p.send(ctx, PublishOperation, trace)
}

func (p *TracePublisher) send(ctx context.Context, operation string, trace domain.RetrievalTrace) error {
	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	err = p.executor.Execute(ctx, operation, func(_ context.Context) error {
		if err := p.publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeTraces delivers traces published on subject until ctx is done.
func SubscribeTraces(ctx context.Context, url, subject string, handler func(domain.RetrievalTrace)) error {
	conn, err := connect(url, Options{})
	if err != nil {
		return err
	}
	defer conn.Close()
	if subject == "" {
		subject = DefaultTraceSubject
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var trace domain.RetrievalTrace
		if err := json.Unmarshal(msg.Data, &trace); err != nil {
			slog.Warn("trace_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(trace)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}
