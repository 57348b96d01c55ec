package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokerList("a:9092, b:9092,"))
	assert.Empty(t, brokerList(""))
	assert.Empty(t, brokerList(" , "))
}

func TestCreateChannel_MissingBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, _, err := CreateChannel(watermill.NopLogger{}, "worker")
	require.Error(t, err)
}
