package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("run backtest: %w", DataInsufficient("only %d rows", 10))

	assert.True(t, errors.Is(err, ErrDataInsufficient))
	assert.False(t, errors.Is(err, ErrInvalidDateRange))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindDataInsufficiency, kind)
	assert.Equal(t, "data_insufficiency: only 10 rows", errors.Unwrap(err).Error())

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, KindInvalidDateRange, InvalidDateRange("x").Kind)
	assert.Equal(t, KindNumericInstability, NumericInstability("x").Kind)
	assert.Equal(t, KindInvalidRequest, InvalidRequest("bad %s", "days").Kind)
	assert.Equal(t, "bad days", InvalidRequest("bad %s", "days").Message)
}
