package sse

// PublishRequest pairs a channel name with the message to broadcast on it.
type PublishRequest[T any] struct {
	Channel string `json:"channel"`
	Message T      `json:"message"`
}

// IChannel fans messages for one topic out to its subscribers.
type IChannel[T any] interface {
	// Subscribe registers a new subscriber and returns its receive channel.
	Subscribe() <-chan T
	// Unsubscribe removes and closes the given subscriber channel.
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll removes and closes every subscriber channel.
	UnsubscribeAll()
	// Broadcast delivers the message to every current subscriber.
	Broadcast(message T)
	// IsIdle reports whether the channel has no subscribers.
	IsIdle() bool
}

// IConnectionManager routes published messages to per-topic channels.
// Messages travel through a redis stream, so every running instance
// broadcasts to its own subscribers regardless of which instance
// published.
type IConnectionManager[T any] interface {
	// Start begins receiving and broadcasting. Call it before anything else.
	Start()
	// Done stops the manager and releases every subscriber.
	Done()
	// Subscribe registers a subscriber on the named channel.
	Subscribe(channelName string) (<-chan T, error)
	// Publish pushes data to the named channel on every instance.
	Publish(channelName string, data T) error
	// Unsubscribe removes a subscriber from the named channel.
	Unsubscribe(channelName string, ch <-chan T)
}
