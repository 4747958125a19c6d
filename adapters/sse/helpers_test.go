package sse_test

import (
	"io"
	"log"
	"sync"

	"ma2ta/adapters/sse"
)

func init() {
	log.SetOutput(io.Discard)
}

// Message is the payload shape used across the package tests.
type Message struct {
	Data string `json:"data"`
}

// loopback stands in for the redis stream: it is both the producer and
// the consumer of the same in-process channel.
type loopback struct {
	ch   chan sse.PublishRequest[Message]
	once sync.Once
}

func newLoopback() *loopback {
	return &loopback{ch: make(chan sse.PublishRequest[Message], 16)}
}

func (l *loopback) Start() {}

func (l *loopback) Publish(r sse.PublishRequest[Message]) error {
	l.ch <- r
	return nil
}

func (l *loopback) Subscribe() <-chan sse.PublishRequest[Message] {
	return l.ch
}

func (l *loopback) Close() {
	l.once.Do(func() { close(l.ch) })
}
