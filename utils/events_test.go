package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/communityconnect/server/config"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev ModerationEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) Close() error { return m.Called().Error(0) }

func TestPublishModeration_UsesInstalledPublisher(t *testing.T) {
	p := new(mockPublisher)
	SetEventPublisher(p)
	t.Cleanup(func() { SetEventPublisher(nil) })

	ev := ModerationEvent{Action: ActionApprove, TargetType: "post", TargetID: 3, ActorID: 1, At: time.Now()}
	p.On("Publish", mock.Anything, ev).Return(nil).Once()
	PublishModeration(context.Background(), ev)

	failing := ModerationEvent{Action: ActionRemove, TargetType: "comment", TargetID: 5}
	p.On("Publish", mock.Anything, failing).Return(errors.New("broker down")).Once()
	assert.NotPanics(t, func() { PublishModeration(context.Background(), failing) })

	p.AssertExpectations(t)
}

func TestInitEventPublisher_LogWithoutBrokers(t *testing.T) {
	t.Cleanup(func() { SetEventPublisher(nil) })
	p := InitEventPublisher(config.AppConfig{KafkaBrokers: []string{" ", ""}})
	assert.IsType(t, logPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), ModerationEvent{Action: ActionArchive}))
	assert.NoError(t, p.Close())
}

func TestInitEventPublisher_Kafka(t *testing.T) {
	t.Cleanup(func() { SetEventPublisher(nil) })
	p := InitEventPublisher(config.AppConfig{KafkaBrokers: []string{"localhost:9092"}, KafkaModerationTopic: "moderation"})
	_, ok := p.(*kafkaPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Close())
}
