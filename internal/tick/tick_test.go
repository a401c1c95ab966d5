package tick_test

import (
	"testing"

	"fenrir/internal/tick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	cases := []string{"100", "11.3", "0.0001", "-5.25", "10000.9999"}
	for _, c := range cases {
		price, err := decimal.NewFromString(c)
		assert.NoError(t, err)

		got := tick.ToDecimal(tick.FromDecimal(price))
		assert.True(t, price.Equal(got), "round trip %s -> %s", price, got)
	}
}

func TestFromDecimalSaturates(t *testing.T) {
	huge := decimal.New(1, 30)
	assert.Equal(t, tick.Tick(1<<63-1), tick.FromDecimal(huge))

	tiny := decimal.New(-1, 30)
	assert.Equal(t, tick.Tick(-1<<63), tick.FromDecimal(tiny))
}

func TestScale(t *testing.T) {
	assert.Equal(t, tick.Tick(1133000), tick.FromDecimal(decimal.NewFromFloat(113.3)))
}
