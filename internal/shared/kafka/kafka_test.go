package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers("a:9092, b:9092,"))
	assert.Nil(t, Brokers(""))
}

func TestNewWriterUsesAllBrokers(t *testing.T) {
	w := NewWriter("a:9092,b:9092", "escrow_transitions")
	assert.Equal(t, "escrow_transitions", w.Topic)
	assert.NotNil(t, w.Addr)
}
