package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"
)

var (
	ErrConsumerClosed = errors.New("consumer is closed")
)

// Message carries one decoded stream entry plus what is needed to ack it.
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// Done acknowledges the message as processed.
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail moves the message to the dead-letter stream and acks the original.
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	m.raw["error"] = failErr.Error()
	err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + ":dead-letter",
		Values: m.raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	err = m.client.XAck(ctx, m.stream, m.group, m.messageID).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

// GroupConsumer reads a stream through a consumer group, so exactly one
// of the running instances handles each notification fan-out job.
type GroupConsumer[T any] struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	downStream    chan *Message[T]
	cancelFunc    context.CancelFunc
	wg            sync.WaitGroup
	closed        bool
	logger        *slog.Logger
	mutex         IAutoRenewMutex
	pendingMsgIds []string
	options       groupConsumerOptions[T]
}

type groupConsumerOptions[T any] struct {
	logger         *slog.Logger
	parseFunc      func(map[string]any) (T, error)
	bufferSize     int
	blockTimeout   time.Duration
	mutex          IAutoRenewMutex
	strictOrdering bool
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger sets the logger.
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc overrides the message deserialization.
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBufferSize sets the downstream channel capacity.
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout sets how long each XREADGROUP blocks.
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerMutex injects the ordering mutex, mainly for tests.
func WithGroupConsumerMutex[T any](mutex IAutoRenewMutex) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.mutex = mutex
	}
}

// WithGroupConsumerStrictOrdering makes a single instance hold a
// distributed lock while consuming, so messages are handled in stream
// order across the whole group.
func WithGroupConsumerStrictOrdering[T any](strict bool) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.strictOrdering = strict
	}
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (IGroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupConsumerOptions[T]{
		logger:         slog.Default(),
		parseFunc:      DefaultParseFromMessage[T],
		bufferSize:     1,
		blockTimeout:   time.Second,
		strictOrdering: false,
	}
	for _, opt := range opts {
		opt(&options)
	}

	gc := &GroupConsumer[T]{
		logger:   options.logger.With(slog.String("caller", "GroupConsumer"), slog.String("stream", stream), slog.String("group", group), slog.String("consumer", consumer)),
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		options:  options,
	}

	// The mutex only exists in strict ordering mode.
	if options.strictOrdering {
		if options.mutex != nil {
			gc.mutex = options.mutex
		} else {
			gc.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group), WithAutoRenewMutexSkipLockError(true))
		}
	}

	return gc, nil
}

func (s *GroupConsumer[T]) Start() error {
	if !s.closed {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Message[T], s.options.bufferSize)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)
		defer func() {
			if s.options.strictOrdering {
				s.mutex.Unlock(context.Background())
			}
		}()

		for {
			workloadContext := ctx

			// In strict ordering mode the lock is taken first; the
			// returned child context observes lock loss.
			if s.options.strictOrdering {
				var err error
				workloadContext, err = s.mutex.Lock(ctx)
				if err != nil {
					s.logger.Error("failed to acquire lock", slog.Any("error", err))
					if errors.Is(err, context.Canceled) {
						break
					}
					continue
				}
			}
			if err := s.messagesWorkflow(workloadContext); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					break
				}
				if s.options.strictOrdering && errors.Is(err, context.Canceled) && ctx.Err() == nil {
					// The lock context was canceled, not ours. Loop
					// around and re-acquire.
					s.logger.Error("lock context cancelled, stopping current processing, restarting group consumer")
				} else {
					s.logger.Error("error processing messages, stopping current processing, restarting group consumer", slog.Any("error", err))
				}
				continue
			}
		}
	}()

	return nil
}

// Subscribe returns the downstream message channel.
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	if s.closed {
		return nil
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()

	s.wg.Wait()
	s.logger.Info("group consumer closed gracefully")
	return nil
}

func (s *GroupConsumer[T]) messagesWorkflow(ctx context.Context) error {
	if s.options.strictOrdering {
		if err := s.fetchPendingMessageIds(ctx); err != nil {
			s.logger.Error("initial pending messages fetch failed", slog.Any("error", err))
			return err
		}
	}
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		message, err := s.fetchNextMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.logger.Error("fetch message error", slog.Any("error", err))
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Anything else is a transient redis problem, retrying is
			// enough.
			continue
		}
		data, err := s.options.parseFunc(message.Values)
		if err != nil {
			// Parse failures never succeed on retry. Move the message
			// to dead-letter and keep going.
			s.logger.Error("failed to parse message",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			if deadLetterErr := s.moveToDeadLetter(ctx, message); deadLetterErr != nil {
				s.logger.Error("error moving message to dead letter",
					slog.String("messageId", message.ID),
					slog.Any("error", deadLetterErr),
				)
				// The message stays pending in the stream. Strict
				// ordering mode picks it up first on the next round;
				// without strict ordering it needs manual handling.
				return deadLetterErr
			}
			continue
		}
		msg := &Message[T]{
			Data:      data,
			messageID: message.ID,
			stream:    s.stream,
			group:     s.group,
			client:    s.client,
			raw:       message.Values,
		}
		if err := s.moveToDownStream(ctx, msg); err != nil {
			s.logger.Error("error moving message to downstream",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			// Only context.Canceled can land here; the message stays
			// pending and strict ordering mode recovers it next round.
			return err
		}
	}
}

func (s *GroupConsumer[T]) fetchPendingMessageIds(ctx context.Context) error {
	s.pendingMsgIds = make([]string, 0, 1000)
	lastId := "-"

	for {
		pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: s.stream,
			Group:  s.group,
			Start:  lastId,
			End:    "+",
			Count:  100,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("error getting pending messages: %w", err)
		}

		if len(pending) == 0 {
			break
		}

		for _, p := range pending {
			s.pendingMsgIds = append(s.pendingMsgIds, p.ID)
		}

		lastId = pending[len(pending)-1].ID

		if len(pending) < 100 {
			break
		}
	}

	s.logger.Info("fetched all pending message IDs",
		slog.Int("count", len(s.pendingMsgIds)))
	return nil
}

func (s *GroupConsumer[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	var message redis.XMessage
	var err error

	if len(s.pendingMsgIds) > 0 {
		// Recovered pending messages come first.
		var messages []redis.XMessage
		messages, err = s.client.XRangeN(ctx, s.stream, s.pendingMsgIds[0], s.pendingMsgIds[0], 1).Result()
		s.pendingMsgIds = s.pendingMsgIds[1:]
		if len(messages) > 0 {
			message = messages[0]
		}
	} else {
		var streams []redis.XStream
		streams, err = s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    1,
			Block:    s.options.blockTimeout,
		}).Result()
		if len(streams) > 0 && len(streams[0].Messages) > 0 {
			message = streams[0].Messages[0]
		}
	}

	return message, err
}

func (s *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage) error {
	deadLetterStream := s.stream + ":dead-letter"

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream,
		Values: message.Values,
	}).Err()

	if err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}

	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

func (s *GroupConsumer[T]) moveToDownStream(ctx context.Context, message *Message[T]) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case s.downStream <- message:
		return nil
	}
}
