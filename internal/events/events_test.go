package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockChannel struct{ mock.Mock }

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error { return m.Called().Error(0) }

func TestSubmissionCreatedPublishesJSON(t *testing.T) {
	ch := &mockChannel{}
	var sent amqp.Publishing
	ch.On("PublishWithContext", "submissions", RoutingKeySubmissionCreated, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(amqp.Publishing) }).
		Return(nil)
	p := &Publisher{exchange: "submissions", ch: ch, log: zap.NewNop()}

	err := p.SubmissionCreated(context.Background(), &models.Submission{ID: "7", OwnerID: "u1", TrackName: "Night Drive"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", sent.ContentType)
	assert.Equal(t, amqp.Persistent, sent.DeliveryMode)
	var body map[string]any
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	assert.Equal(t, "u1", body["ownerId"])
	assert.Equal(t, "Night Drive", body["trackName"])
	ch.AssertExpectations(t)
}

func TestPublishErrors(t *testing.T) {
	ch := &mockChannel{}
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("blocked"))
	p := &Publisher{exchange: "submissions", ch: ch, log: zap.NewNop()}
	assert.ErrorContains(t, p.PublishJSON(context.Background(), "k", map[string]string{}), "blocked")

	ch.On("Close").Return(nil)
	require.NoError(t, p.Close())
	assert.ErrorContains(t, p.PublishJSON(context.Background(), "k", nil), "closed")

	empty := &Publisher{log: zap.NewNop()}
	assert.ErrorContains(t, empty.PublishJSON(context.Background(), "k", nil), "not available")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.SubmissionCreated(context.Background(), &models.Submission{}))
}
