package nimocontext

import (
	"context"
	"fmt"

	"github.com/opendragon/nimo/internal/channel"
	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/registry"
)

// AddChannel declares one channel owned by this context: it checks the
// context kind's direction permissions and the getChannelLimits policy
// (spec §4.E "exceeding declared limits causes addChannel to fail with
// limitExceeded"), registers the channel with the Registry, and brings
// it up through SetUp.
func (c *Context) AddChannel(ctx context.Context, path string, dir registry.Direction, dataType string, transport registry.Transport, modifiable bool) (*channel.Channel, error) {
	switch dir {
	case registry.DirectionInput:
		if !c.AllowsInputChannels() {
			return nil, command.Fail(command.BadArgument, fmt.Sprintf("context kind %s does not hold input channels", c.kind))
		}
	case registry.DirectionOutput:
		if !c.AllowsOutputChannels() {
			return nil, command.Fail(command.BadArgument, fmt.Sprintf("context kind %s does not hold output channels", c.kind))
		}
	default:
		return nil, command.Fail(command.BadArgument, "unknown channel direction")
	}

	maxIn, maxOut := c.GetChannelLimits()
	if dir == registry.DirectionInput && maxIn != Unlimited && c.countChannels(registry.DirectionInput) >= maxIn {
		return nil, command.Fail(command.LimitExceeded, fmt.Sprintf("node %s already holds %d input channels", c.nodeName, maxIn))
	}
	if dir == registry.DirectionOutput && maxOut != Unlimited && c.countChannels(registry.DirectionOutput) >= maxOut {
		return nil, command.Fail(command.LimitExceeded, fmt.Sprintf("node %s already holds %d output channels", c.nodeName, maxOut))
	}

	c.channelsMu.Lock()
	if _, exists := c.channels[path]; exists {
		c.channelsMu.Unlock()
		return nil, command.Fail(command.AlreadyExists, fmt.Sprintf("channel %s already declared on %s", path, c.nodeName))
	}
	c.channelsMu.Unlock()

	if c.proxy != nil {
		var err error
		if dir == registry.DirectionInput {
			err = c.proxy.AddInputChannel(ctx, c.nodeName, path, dataType, transport, modifiable)
		} else {
			err = c.proxy.AddOutputChannel(ctx, c.nodeName, path, dataType, transport, modifiable)
		}
		if err != nil {
			return nil, err
		}
	}

	ch := channel.New(c.proxy, c.nodeName, path, dir, dataType, transport, modifiable)
	if err := ch.SetUp(); err != nil {
		if c.proxy != nil {
			_ = c.proxy.RemoveChannel(ctx, c.nodeName, path)
		}
		return nil, err
	}

	c.channelsMu.Lock()
	c.channels[path] = ch
	c.channelsMu.Unlock()

	return ch, nil
}

// Channel returns the channel previously declared at path, if any.
func (c *Context) Channel(path string) (*channel.Channel, bool) {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()
	ch, ok := c.channels[path]
	return ch, ok
}

// RemoveChannel stops and forgets the channel at path, and removes it
// from the Registry if this context has a proxy.
func (c *Context) RemoveChannel(ctx context.Context, path string) error {
	c.channelsMu.Lock()
	ch, ok := c.channels[path]
	if !ok {
		c.channelsMu.Unlock()
		return command.Fail(command.NotFound, fmt.Sprintf("channel %s not declared on %s", path, c.nodeName))
	}
	delete(c.channels, path)
	c.channelsMu.Unlock()

	if err := ch.Stop(); err != nil {
		c.log.Warn("stop channel %s: %v", path, err)
	}

	if c.proxy != nil {
		return c.proxy.RemoveChannel(ctx, c.nodeName, path)
	}
	return nil
}
