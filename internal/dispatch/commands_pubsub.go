package dispatch

import (
	"strings"

	"coolcache/internal/resp"
)

func (d *Dispatcher) registerPubSubCommands() {
	d.register(Command{Name: "SUBSCRIBE", MinArgs: 1, MaxArgs: -1, Handler: cmdSubscribe, Doc: "SUBSCRIBE channel [channel ...]"})
	d.register(Command{Name: "UNSUBSCRIBE", MinArgs: 0, MaxArgs: -1, Handler: cmdUnsubscribe, Doc: "UNSUBSCRIBE [channel ...]"})
	d.register(Command{Name: "PSUBSCRIBE", MinArgs: 1, MaxArgs: -1, Handler: cmdPSubscribe, Doc: "PSUBSCRIBE pattern [pattern ...]"})
	d.register(Command{Name: "PUNSUBSCRIBE", MinArgs: 0, MaxArgs: -1, Handler: cmdPUnsubscribe, Doc: "PUNSUBSCRIBE [pattern ...]"})
	d.register(Command{Name: "PUBLISH", MinArgs: 2, MaxArgs: 2, Handler: cmdPublish, Doc: "PUBLISH channel message"})
	d.register(Command{Name: "PUBSUB", MinArgs: 1, MaxArgs: -1, Handler: cmdPubSub, Doc: "PUBSUB CHANNELS|NUMSUB|NUMPAT"})
}

// ensureSubscriber lazily attaches c to the hub on its first (P)SUBSCRIBE,
// matching a register-on-first-use client bookkeeping idiom.
func ensureSubscriber(d *Dispatcher, c *Conn) {
	if c.Subscriber == nil {
		c.Subscriber = d.deps.PubSub.Attach(c.ID, 128)
	}
	c.Mode = ModeSubscribed
}

func cmdSubscribe(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ensureSubscriber(d, c)
	frames := make([]*resp.Frame, 0, len(args))
	for _, channel := range args {
		count := c.Subscriber.Subscribe(channel)
		frames = append(frames, resp.NewArray(
			resp.NewBulkStringFromString("subscribe"),
			resp.NewBulkStringFromString(channel),
			resp.NewInteger(int64(count)),
		))
	}
	return frames
}

func cmdPSubscribe(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	ensureSubscriber(d, c)
	frames := make([]*resp.Frame, 0, len(args))
	for _, pattern := range args {
		count := c.Subscriber.PSubscribe(pattern)
		frames = append(frames, resp.NewArray(
			resp.NewBulkStringFromString("psubscribe"),
			resp.NewBulkStringFromString(pattern),
			resp.NewInteger(int64(count)),
		))
	}
	return frames
}

func cmdUnsubscribe(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if c.Subscriber == nil {
		return one(resp.NewArray(resp.NewBulkStringFromString("unsubscribe"), resp.NewNullBulkString(), resp.NewInteger(0)))
	}
	targets := args
	if len(targets) == 0 {
		targets = c.Subscriber.Channels()
	}
	frames := make([]*resp.Frame, 0, len(targets))
	for _, channel := range targets {
		count := c.Subscriber.Unsubscribe(channel)
		frames = append(frames, resp.NewArray(
			resp.NewBulkStringFromString("unsubscribe"),
			resp.NewBulkStringFromString(channel),
			resp.NewInteger(int64(count)),
		))
	}
	maybeExitSubscribedMode(c)
	return frames
}

func cmdPUnsubscribe(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	if c.Subscriber == nil {
		return one(resp.NewArray(resp.NewBulkStringFromString("punsubscribe"), resp.NewNullBulkString(), resp.NewInteger(0)))
	}
	targets := args
	if len(targets) == 0 {
		targets = c.Subscriber.Patterns()
	}
	frames := make([]*resp.Frame, 0, len(targets))
	for _, pattern := range targets {
		count := c.Subscriber.PUnsubscribe(pattern)
		frames = append(frames, resp.NewArray(
			resp.NewBulkStringFromString("punsubscribe"),
			resp.NewBulkStringFromString(pattern),
			resp.NewInteger(int64(count)),
		))
	}
	maybeExitSubscribedMode(c)
	return frames
}

func maybeExitSubscribedMode(c *Conn) {
	if c.Subscriber != nil && c.Subscriber.SubscriptionCount() == 0 {
		c.Mode = ModeNormal
	}
}

func cmdPublish(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	n := d.deps.PubSub.Publish(args[0], []byte(args[1]))
	d.deps.Metrics.PubSubDelivered(n)
	return intReply(int64(n))
}

func cmdPubSub(d *Dispatcher, c *Conn, args []string) []*resp.Frame {
	switch strings.ToUpper(args[0]) {
	case "CHANNELS":
		pattern := ""
		if len(args) > 1 {
			pattern = args[1]
		}
		channels := d.deps.PubSub.Channels(pattern)
		items := make([]*resp.Frame, len(channels))
		for i, ch := range channels {
			items[i] = resp.NewBulkStringFromString(ch)
		}
		return arrayReply(items...)
	case "NUMSUB":
		counts := d.deps.PubSub.NumSub(args[1:]...)
		items := make([]*resp.Frame, 0, len(args[1:])*2)
		for _, ch := range args[1:] {
			items = append(items, resp.NewBulkStringFromString(ch), resp.NewInteger(int64(counts[ch])))
		}
		return arrayReply(items...)
	case "NUMPAT":
		return intReply(0)
	default:
		return one(resp.NewErrorf("ERR Unknown PUBSUB subcommand or wrong number of arguments for '%s'", args[0]))
	}
}
