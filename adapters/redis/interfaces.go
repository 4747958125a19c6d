package redis

import (
	"context"
)

// IProducer publishes typed messages onto a redis stream.
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IConsumer tails a redis stream and fans messages out to a channel.
// Every instance sees every message; use IGroupConsumer for
// work-sharing with acknowledgement.
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IGroupConsumer reads a redis stream through a consumer group, with
// per-message ack and dead-lettering.
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IAutoRenewMutex is a distributed lock that keeps itself alive while
// held. TryLock is the non-blocking variant used by the lifecycle sweep.
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) (bool, error)
	Valid() bool
}
