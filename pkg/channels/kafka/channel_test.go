package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "localhost:9092", want: []string{"localhost:9092"}},
		{in: "a:9092, b:9092,,", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBrokers(tt.in), tt.in)
	}
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "dataflow")
	assert.ErrorIs(t, err, ErrNoBrokers)
}
