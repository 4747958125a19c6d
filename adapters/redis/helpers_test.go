package redis

import (
	"io"
	"log"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetOutput(io.Discard)
}

func setupTest(t *testing.T) (*redis.Client, redismock.ClientMock, func()) {
	db, mock := redismock.NewClientMock()
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

// bidNotice is the shape the bid feed puts on the stream, reduced to
// what the adapters care about.
type bidNotice struct {
	ItemID string `json:"item_id"`
	Bidder string `json:"bidder"`
	Amount int64  `json:"amount"`
}
