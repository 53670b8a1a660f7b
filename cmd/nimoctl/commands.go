package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/config"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/statusbus"
)

func newAddNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-node <name> <machine> <kind> <address> <port>",
		Short: "Register a node with the registry",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[4])
			if err != nil {
				return fail(1, fmt.Errorf("port: %w", err))
			}
			addr, err := parseIPv4(args[3])
			if err != nil {
				return fail(1, err)
			}

			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			ep := registry.Endpoint{Address: addr, Port: port}
			if err := p.AddNode(ctx, args[0], args[1], registry.ServiceKind(args[2]), ep); err != nil {
				return classify(err)
			}
			fmt.Printf("node %s registered\n", args[0])
			return nil
		},
	}
}

func newRemoveNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-node <name>",
		Short: "Remove a node and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			if err := p.RemoveNode(ctx, args[0]); err != nil {
				return classify(err)
			}
			fmt.Printf("node %s removed\n", args[0])
			return nil
		},
	}
}

func newListChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-channels <node>",
		Short: "List every channel owned by a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			chans, err := p.GetInformationForAllChannelsOnNode(ctx, args[0])
			if err != nil {
				return classify(err)
			}
			for _, c := range chans {
				fmt.Printf("%s\t%s\t%s\tinUse=%v\tbytes=%d\tmessages=%d\n",
					c.Path, c.Direction, c.DataType, c.InUse, c.Statistics.Bytes, c.Statistics.Messages)
			}
			return nil
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <fromNode> <fromPath> <toNode> <toPath>",
		Short: "Connect an output channel to an input channel",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			transport, err := p.AddConnection(ctx, args[0], args[1], args[2], args[3])
			if err != nil {
				return classify(err)
			}
			fmt.Printf("connected over %s\n", transport)
			return nil
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <sinkNode> <sinkPath>",
		Short: "Tear down the connection feeding an input channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			if err := p.Disconnect(ctx, args[0], args[1]); err != nil {
				return classify(err)
			}
			fmt.Println("disconnected")
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Confirm the registry is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())
			defer cancel()

			n, err := p.GetNumberOfNodes(ctx)
			if err != nil {
				return classify(err)
			}
			fmt.Printf("registry reachable, %d node(s) registered\n", n)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print registry status-bus events as they arrive (best-effort, spec §4.J)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fail(1, err)
			}

			group := fmt.Sprintf("%s:%d", cfg.StatusBus.Group, cfg.StatusBus.Port)
			sub, err := statusbus.NewSubscriber(group)
			if err != nil {
				return fail(2, err)
			}
			defer sub.Close()

			fmt.Printf("watching %s (duplicates and reordering are expected; reconcile via the registry proxy)\n", group)
			for ev := range sub.Events(cmd.Context()) {
				fmt.Printf("%s\t%s\t%v\n", ev.ID, ev.Kind, ev.Subject)
			}
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <node>",
		Short: "Ask a running node to shut down gracefully",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := callCtx(cmd.Context())

			n, err := p.GetNodeInformation(ctx, args[0])
			cancel()
			if err != nil {
				return classify(err)
			}

			ctx, cancel = callCtx(cmd.Context())
			defer cancel()
			resp, err := command.Call(ctx, n.Command.String(), command.Request{Key: "stop."})
			if err != nil {
				return classify(err)
			}
			if !resp.OK {
				log.Warn("node %s refused stop: %s", args[0], resp.FailureReason)
				return fail(3, fmt.Errorf("%s", resp.FailureReason))
			}
			fmt.Printf("node %s stopped\n", args[0])
			return nil
		},
	}
}
