package registryproxy

import (
	"context"

	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

func (p *Proxy) addChannel(ctx context.Context, node, path string, isOutput bool, dataType string, transport registry.Transport, modifiable bool) error {
	_, err := p.call(ctx, "addChannel?",
		value.NewString(node), value.NewString(path), value.NewLogical(isOutput),
		value.NewString(dataType), value.NewString(string(transport)), value.NewLogical(modifiable))
	return err
}

// AddInputChannel is a convenience wrapper over addChannel for the common
// case of declaring an input endpoint (SPEC_FULL §C.4 "addInputChannel /
// addOutputChannel proxy wrappers").
func (p *Proxy) AddInputChannel(ctx context.Context, node, path, dataType string, transport registry.Transport, modifiable bool) error {
	return p.addChannel(ctx, node, path, false, dataType, transport, modifiable)
}

// AddOutputChannel is the output-endpoint counterpart of AddInputChannel.
func (p *Proxy) AddOutputChannel(ctx context.Context, node, path, dataType string, transport registry.Transport, modifiable bool) error {
	return p.addChannel(ctx, node, path, true, dataType, transport, modifiable)
}

// RemoveChannel removes one channel.
func (p *Proxy) RemoveChannel(ctx context.Context, node, path string) error {
	_, err := p.call(ctx, "removeChannel?", value.NewString(node), value.NewString(path))
	return err
}

// RemoveChannelsForNode removes every channel belonging to node.
func (p *Proxy) RemoveChannelsForNode(ctx context.Context, node string) error {
	_, err := p.call(ctx, "removeChannelsForNode?", value.NewString(node))
	return err
}

// IsChannelPresent reports whether (node, path) identifies a known
// channel.
func (p *Proxy) IsChannelPresent(ctx context.Context, node, path string) (bool, error) {
	v, err := p.call(ctx, "isChannelPresent?", value.NewString(node), value.NewString(path))
	if err != nil {
		return false, err
	}
	return boolOf(v)
}

func channelFromValue(v value.Value) (registry.Channel, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return registry.Channel{}, err
	}
	if len(arr) != 9 {
		return registry.Channel{}, errMalformed("channel")
	}
	node, ok1 := arr[0].AsString()
	path, ok2 := arr[1].AsString()
	isOutput, ok3 := arr[2].AsBool()
	dataType, ok4 := arr[3].AsString()
	transport, ok5 := arr[4].AsString()
	inUse, ok6 := arr[5].AsBool()
	modifiable, ok7 := arr[6].AsBool()
	bytes, ok8 := arr[7].AsInt64()
	messages, ok9 := arr[8].AsInt64()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 || !ok8 || !ok9 {
		return registry.Channel{}, errMalformed("channel")
	}
	dir := registry.DirectionInput
	if isOutput {
		dir = registry.DirectionOutput
	}
	return registry.Channel{
		Node: node, Path: path, Direction: dir, DataType: dataType,
		Transport: registry.Transport(transport), InUse: inUse, Modifiable: modifiable,
		Statistics: registry.ChannelStatistics{Bytes: bytes, Messages: messages},
	}, nil
}

// GetChannelInformation fetches one channel's recorded attributes.
func (p *Proxy) GetChannelInformation(ctx context.Context, node, path string) (registry.Channel, error) {
	v, err := p.call(ctx, "getChannelInformation?", value.NewString(node), value.NewString(path))
	if err != nil {
		return registry.Channel{}, err
	}
	return channelFromValue(v)
}

// GetInformationForAllChannelsOnNode lists every channel belonging to
// node.
func (p *Proxy) GetInformationForAllChannelsOnNode(ctx context.Context, node string) ([]registry.Channel, error) {
	v, err := p.call(ctx, "getInformationForAllChannelsOnNode?", value.NewString(node))
	if err != nil {
		return nil, err
	}
	arr, err := arrayArg(v)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Channel, len(arr))
	for i, e := range arr {
		c, err := channelFromValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// GetNumberOfInputChannelsOnNode counts node's input channels.
func (p *Proxy) GetNumberOfInputChannelsOnNode(ctx context.Context, node string) (int, error) {
	v, err := p.call(ctx, "getNumberOfInputChannelsOnNode?", value.NewString(node))
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}

// GetNumberOfOutputChannelsOnNode counts node's output channels.
func (p *Proxy) GetNumberOfOutputChannelsOnNode(ctx context.Context, node string) (int, error) {
	v, err := p.call(ctx, "getNumberOfOutputChannelsOnNode?", value.NewString(node))
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}

// SetChannelInUse directly sets a channel's in-use flag.
func (p *Proxy) SetChannelInUse(ctx context.Context, node, path string, inUse bool) error {
	_, err := p.call(ctx, "setChannelInUse?", value.NewString(node), value.NewString(path), value.NewLogical(inUse))
	return err
}

// GetChannelStatistics fetches a channel's cumulative transfer counters.
func (p *Proxy) GetChannelStatistics(ctx context.Context, node, path string) (registry.ChannelStatistics, error) {
	v, err := p.call(ctx, "getChannelStatistics?", value.NewString(node), value.NewString(path))
	if err != nil {
		return registry.ChannelStatistics{}, err
	}
	arr, err := arrayArg(v)
	if err != nil {
		return registry.ChannelStatistics{}, err
	}
	if len(arr) != 2 {
		return registry.ChannelStatistics{}, errMalformed("channel statistics")
	}
	bytes, ok1 := arr[0].AsInt64()
	messages, ok2 := arr[1].AsInt64()
	if !ok1 || !ok2 {
		return registry.ChannelStatistics{}, errMalformed("channel statistics")
	}
	return registry.ChannelStatistics{Bytes: bytes, Messages: messages}, nil
}

// UpdateChannelStatistics reports delta transfer activity for a channel.
func (p *Proxy) UpdateChannelStatistics(ctx context.Context, node, path string, deltaBytes, deltaMessages int64) error {
	_, err := p.call(ctx, "updateChannelStatistics?",
		value.NewString(node), value.NewString(path), value.NewInteger(deltaBytes), value.NewInteger(deltaMessages))
	return err
}
