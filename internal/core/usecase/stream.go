package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

var errStreamClosed = errors.New("stream closed by consumer")

type emitterState int

const (
	emitterIdle emitterState = iota
	emitterStreaming
	emitterFinished
)

// streamEmitter enforces meta, chunk*, then one terminal event on a bounded
// channel. Once ctx is done nothing else is sent.
type streamEmitter struct {
	ctx   context.Context
	out   chan<- domain.StreamEvent
	state emitterState
}

func newStreamEmitter(ctx context.Context, out chan<- domain.StreamEvent) *streamEmitter {
	return &streamEmitter{ctx: ctx, out: out}
}

func (e *streamEmitter) meta(meta domain.StreamMeta) bool {
	if e.state != emitterIdle {
		return false
	}
	if !e.send(domain.StreamEvent{Kind: domain.StreamEventMeta, Meta: &meta}) {
		return false
	}
	e.state = emitterStreaming
	return true
}

func (e *streamEmitter) chunk(text string) bool {
	if e.state != emitterStreaming {
		return false
	}
	if text == "" {
		return true
	}
	return e.send(domain.StreamEvent{Kind: domain.StreamEventChunk, Text: text})
}

func (e *streamEmitter) done() bool {
	return e.terminate(domain.StreamEvent{Kind: domain.StreamEventDone})
}

func (e *streamEmitter) fail(message string) bool {
	return e.terminate(domain.StreamEvent{Kind: domain.StreamEventError, Message: message})
}

func (e *streamEmitter) terminate(event domain.StreamEvent) bool {
	if e.state != emitterStreaming {
		return false
	}
	e.state = emitterFinished
	return e.send(event)
}

func (e *streamEmitter) send(event domain.StreamEvent) bool {
	if e.state == emitterFinished && !event.Terminal() {
		return false
	}
	if e.ctx.Err() != nil {
		e.state = emitterFinished
		return false
	}
	select {
	case e.out <- event:
		return true
	case <-e.ctx.Done():
		e.state = emitterFinished
		return false
	}
}

func (e *streamEmitter) close() {
	e.state = emitterFinished
	close(e.out)
}
