package websocket

import "strings"

// ChannelAuthorizer decides which channels a user may join.
type ChannelAuthorizer struct{}

func NewChannelAuthorizer() *ChannelAuthorizer {
	return &ChannelAuthorizer{}
}

// CanSubscribe allows the shared todo channels and the user's own channel.
func (a *ChannelAuthorizer) CanSubscribe(userID string, channel string) bool {
	switch channel {
	case ChannelTodos, ChannelExternalTodos:
		return true
	}
	if strings.HasPrefix(channel, ChannelUserPrefix) {
		return userID != "" && strings.TrimPrefix(channel, ChannelUserPrefix) == userID
	}
	// Default deny
	return false
}

// DefaultChannels are joined on connect.
func (a *ChannelAuthorizer) DefaultChannels(userID string) []string {
	return []string{ChannelTodos, ChannelExternalTodos, ChannelUserPrefix + userID}
}
