package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

type fakeRedis struct {
	channel  string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func TestRedisPublisher_HandleEvent(t *testing.T) {
	client := &fakeRedis{}
	p := NewRedisPublisher(client, "dashboard.records", zap.NewNop())

	evt := event.NewEvent(event.TypeRecordStatusChanged, entity.KindReimbursement, "rec-1", "exec-1", map[string]interface{}{
		event.PayloadFromStatus: "submitted",
		event.PayloadToStatus:   "approved",
	})
	require.NoError(t, p.HandleEvent(context.Background(), evt))

	require.Len(t, client.messages, 1)
	assert.Equal(t, "dashboard.records", client.channel)

	decoded, err := Decode(string(client.messages[0]))
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, event.TypeRecordStatusChanged, decoded.Type)
	assert.Equal(t, entity.KindReimbursement, decoded.RecordKind)
	assert.Equal(t, "approved", decoded.GetPayloadString(event.PayloadToStatus))
}

func TestRedisPublisher_ReturnsPublishErrors(t *testing.T) {
	p := NewRedisPublisher(&fakeRedis{err: errors.New("connection refused")}, "dashboard.records", zap.NewNop())

	err := p.HandleEvent(context.Background(), event.NewEvent(event.TypeRecordDeleted, entity.KindDeposit, "dep-1", "admin-1", nil))

	assert.Error(t, err)
}

func TestDecode_RejectsUnknownTypes(t *testing.T) {
	_, err := Decode(`{"type":"record.exploded"}`)
	assert.Error(t, err)

	_, err = Decode(`not json`)
	assert.Error(t, err)
}
