package domain

// Pub/sub channels carrying display events.
const (
	ChannelEstimate = "ch:estimate"
	ChannelStatus   = "ch:status"

	// ChannelBookPattern matches every per-instrument book channel.
	ChannelBookPattern = "ch:book:*"
)

// BookChannel is the channel for one instrument's book updates.
func BookChannel(instrument string) string {
	return "ch:book:" + instrument
}

// StreamFeedRejects holds recently rejected feed frames for inspection.
const StreamFeedRejects = "stream:feed:rejects"
