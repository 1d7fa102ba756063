package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelConnection_ParticipatesInOutbound(t *testing.T) {
	base := ChannelConnection{
		Status:    ConnectionActive,
		Direction: DirectionBidirectional,
		Channel:   ChannelBookingCom,
	}

	// A change sourced from the property-management system (no source
	// channel) reaches every active bidirectional/outbound connection.
	assert.True(t, base.ParticipatesInOutbound(""))

	// A change sourced from another channel still reaches this one.
	assert.True(t, base.ParticipatesInOutbound(ChannelAirbnb))

	// The cyclic-reference break: the channel that originated the change
	// never receives it back.
	assert.False(t, base.ParticipatesInOutbound(ChannelBookingCom))

	inactive := base
	inactive.Status = ConnectionError
	assert.False(t, inactive.ParticipatesInOutbound(""))

	inboundOnly := base
	inboundOnly.Direction = DirectionInboundOnly
	assert.False(t, inboundOnly.ParticipatesInOutbound(""))

	outboundOnly := base
	outboundOnly.Direction = DirectionOutboundOnly
	assert.True(t, outboundOnly.ParticipatesInOutbound(""))
}

func TestChannelConnection_ApplyPriceAdjustment(t *testing.T) {
	pct := ChannelConnection{PriceAdjustmentType: AdjustmentPercentage, PriceAdjustmentValue: 10}
	assert.InDelta(t, 110.0, pct.ApplyPriceAdjustment(100), 0.0001)

	fixed := ChannelConnection{PriceAdjustmentType: AdjustmentFixed, PriceAdjustmentValue: 15}
	assert.InDelta(t, 115.0, fixed.ApplyPriceAdjustment(100), 0.0001)

	none := ChannelConnection{}
	assert.InDelta(t, 100.0, none.ApplyPriceAdjustment(100), 0.0001)
}
