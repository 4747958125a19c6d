package sse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"ma2ta/adapters/redis"
)

type managerOptions[T any] struct {
	logger   *slog.Logger
	producer redis.IProducer[PublishRequest[T]]
	consumer redis.IConsumer[PublishRequest[T]]
}

type ManagerOption[T any] func(*managerOptions[T])

// WithManagerLogger sets the logger.
func WithManagerLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithManagerProducer injects the stream producer, mainly for tests.
func WithManagerProducer[T any](p redis.IProducer[PublishRequest[T]]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.producer = p
	}
}

// WithManagerConsumer injects the stream consumer, mainly for tests.
func WithManagerConsumer[T any](c redis.IConsumer[PublishRequest[T]]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.consumer = c
	}
}

// connectionManager keeps the per-topic channels of this instance and
// bridges them to the shared redis stream. A published message makes one
// round trip through the stream before it is broadcast, so subscribers
// on other instances see it too.
type connectionManager[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex
	wg     sync.WaitGroup
	active bool

	producer redis.IProducer[PublishRequest[T]]
	consumer redis.IConsumer[PublishRequest[T]]
	channels map[string]IChannel[T]
}

func NewConnectionManager[T any](client *goredis.Client, streamKey string, opts ...ManagerOption[T]) (IConnectionManager[T], error) {
	options := managerOptions[T]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger.With(slog.String("caller", "ConnectionManager"))

	if options.producer == nil {
		if client == nil {
			return nil, errors.New("redis client cannot be nil without an injected producer")
		}
		producer, err := redis.NewProducer[PublishRequest[T]](client, streamKey,
			redis.WithProducerLogger[PublishRequest[T]](options.logger))
		if err != nil {
			return nil, fmt.Errorf("create stream producer error: %w", err)
		}
		options.producer = producer
	}
	if options.consumer == nil {
		if client == nil {
			return nil, errors.New("redis client cannot be nil without an injected consumer")
		}
		consumer, err := redis.NewConsumer[PublishRequest[T]](client, streamKey,
			redis.WithConsumerLogger[PublishRequest[T]](options.logger))
		if err != nil {
			return nil, fmt.Errorf("create stream consumer error: %w", err)
		}
		options.consumer = consumer
	}

	return &connectionManager[T]{
		logger:   logger,
		producer: options.producer,
		consumer: options.consumer,
		channels: make(map[string]IChannel[T]),
		active:   true,
	}, nil
}

// Start begins receiving and broadcasting. Call it before anything else.
func (cm *connectionManager[T]) Start() {
	cm.producer.Start()
	cm.consumer.Start()

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for msg := range cm.consumer.Subscribe() {
			cm.mu.RLock()
			if channel, ok := cm.channels[msg.Channel]; ok {
				channel.Broadcast(msg.Message)
			}
			cm.mu.RUnlock()
		}
	}()
}

// Done stops the manager and releases every subscriber.
func (cm *connectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	cm.mu.Unlock()

	cm.producer.Close()
	cm.consumer.Close()
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe registers a subscriber on the named channel.
func (cm *connectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, context.Canceled
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T]()
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish pushes data to the named channel on every instance.
func (cm *connectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.active {
		return context.Canceled
	}

	return cm.producer.Publish(PublishRequest[T]{
		Channel: channelName,
		Message: data,
	})
}

// Unsubscribe removes a subscriber from the named channel.
func (cm *connectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
