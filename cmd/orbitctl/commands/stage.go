package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/pkg/orbit"
)

// stageCmd groups operations that query a running Stage's own reported
// status, as opposed to directoryCmd's offline inspection of placement
// records.
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Query a running node's Stage",
}

var stageStatusCmd = &cobra.Command{
	Use:   "status <node>",
	Short: "Report a node's identity, lifecycle status, and capabilities",
	Long: `Report a node's identity, lifecycle status, and capabilities.

This is sugar over "orbitctl invoke NodeStatus <node> status", calling the
built-in NodeStatus addressable every orbitd registers at startup.`,
	Args: cobra.ExactArgs(1),
	RunE: runStageStatus,
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageStatusCmd)

	stageStatusCmd.Flags().StringVar(
		&invokeListenAddr, "listen", "127.0.0.1:0",
		"Address this CLI listens on to receive the status reply",
	)
	stageStatusCmd.Flags().Int64Var(
		&invokeTimeoutMillis, "timeout-ms", 10_000,
		"Query timeout in milliseconds",
	)
}

func runStageStatus(cmd *cobra.Command, args []string) error {
	target := args[0]

	addrBook, err := parseAddrBook(peers)
	if err != nil {
		return err
	}
	if _, ok := addrBook[netid.NodeIdentity(target)]; !ok {
		return fmt.Errorf("node %q not found in --peers address book", target)
	}

	self := netidIdentity()

	tp := transport.NewGrpcTransport(self,
		transport.DefaultGrpcServerConfig(invokeListenAddr), addrBook)
	if err := tp.Start(); err != nil {
		return fmt.Errorf("starting status listener: %w", err)
	}
	defer tp.Stop()

	cfg := orbit.DefaultConfig()
	cfg.NodeIdentity = self

	stg := orbit.NewStage(cfg, directory.NewMemoryBackend(), tp)
	stg.AddPeer(netid.NodeIdentity(target), []string{"NodeStatus"})

	if err := stg.Start(context.Background()); err != nil {
		return fmt.Errorf("starting client stage: %w", err)
	}
	defer stg.Stop(context.Background())

	proxies := orbit.NewActorProxyFactory(stg, invokeTimeoutMillis)
	proxy := proxies.GetReference("NodeStatus", target)

	ctx, cancel := context.WithTimeout(context.Background(),
		durationFromMillis(invokeTimeoutMillis))
	defer cancel()

	result, err := proxy.Invoke(ctx, "status")
	if err != nil {
		return fmt.Errorf("stage status %s: %w", target, err)
	}

	if outputFormat == "json" {
		return outputJSON(result)
	}

	fmt.Printf("%+v\n", result)
	return nil
}
