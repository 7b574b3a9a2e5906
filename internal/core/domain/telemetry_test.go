package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChargeMode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(CHARGE_MODE_BULK, ParseChargeMode(0).Kind)
	assert.Equal(CHARGE_MODE_BULK, ParseChargeMode(int32(0)).Kind)
	assert.Equal(CHARGE_MODE_BULK, ParseChargeMode("bulk").Kind)
	assert.Equal(CHARGE_MODE_BALANCING, ParseChargeMode(int64(1)).Kind)
	assert.Equal(CHARGE_MODE_BALANCING, ParseChargeMode("Balancing").Kind)
	assert.Equal(CHARGE_MODE_SINK, ParseChargeMode(float64(2)).Kind)
	assert.Equal(CHARGE_MODE_SINK, ParseChargeMode("sink").Kind)
	assert.Equal(CHARGE_MODE_FLOAT, ParseChargeMode(uint8(3)).Kind)
	assert.Equal(CHARGE_MODE_FLOAT, ParseChargeMode("floating").Kind)
	assert.Equal(CHARGE_MODE_UNKNOWN, ParseChargeMode(nil).Kind)

	other := ParseChargeMode("absorption")
	assert.Equal(CHARGE_MODE_OTHER, other.Kind)
	assert.Equal("absorption", other.String())

	code := ParseChargeMode(7)
	assert.Equal(CHARGE_MODE_OTHER, code.Kind)
	assert.Equal("7", code.Raw)

	assert.Equal(CHARGE_MODE_OTHER, ParseChargeMode(1.5).Kind)
}

func TestChargeModeString(t *testing.T) {
	assert.Equal(t, "bulk", ChargeMode{Kind: CHARGE_MODE_BULK}.String())
	assert.Equal(t, "float", ChargeMode{Kind: CHARGE_MODE_FLOAT}.String())
	assert.Equal(t, "unknown", ChargeMode{}.String())
}

func TestParseGridSource(t *testing.T) {
	assert := assert.New(t)

	v, ok := ParseGridSource(nil)
	assert.True(ok)
	assert.Equal(0, v)

	v, ok = ParseGridSource(int32(240))
	assert.True(ok)
	assert.Equal(240, v)

	v, ok = ParseGridSource(uint16(1))
	assert.True(ok)
	assert.Equal(1, v)

	_, ok = ParseGridSource("grid")
	assert.False(ok)

	_, ok = ParseGridSource(math.NaN())
	assert.False(ok)
}

func TestGateState(t *testing.T) {
	assert.False(t, GATE_ACTIVE.Gated())
	assert.True(t, GATE_GRID_CONNECTED.Gated())
	assert.True(t, GATE_DISABLED.Gated())
	assert.Equal(t, "grid_connected", GATE_GRID_CONNECTED.String())
}
