package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/pkg/orbit"
)

var (
	invokeListenAddr    string
	invokeTimeoutMillis int64
)

// invokeCmd dials into a running cluster as a capability-less client node
// and invokes a single addressable method. Since the core's gRPC transport
// replies by dialing the caller back rather than over the original unary
// response, the target node must already know this CLI's --listen address
// (add it to the target's own --peers address book) for the reply to
// arrive; this mirrors the address book being a static, externally-managed
// concern (internal/orbitcore/transport/grpc.go's own non-goal).
var invokeCmd = &cobra.Command{
	Use:   "invoke <interface> <key> <method> [args...]",
	Short: "Invoke a method on a remote addressable",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(
		&invokeListenAddr, "listen", "127.0.0.1:0",
		"Address this CLI listens on to receive the invocation's reply",
	)
	invokeCmd.Flags().Int64Var(
		&invokeTimeoutMillis, "timeout-ms", 10_000,
		"Invocation timeout in milliseconds",
	)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	interfaceID, key, methodID := args[0], args[1], args[2]

	var callArgs []any
	for _, a := range args[3:] {
		callArgs = append(callArgs, a)
	}

	addrBook, err := parseAddrBook(peers)
	if err != nil {
		return err
	}

	self := netidIdentity()

	tp := transport.NewGrpcTransport(self,
		transport.DefaultGrpcServerConfig(invokeListenAddr), addrBook)
	if err := tp.Start(); err != nil {
		return fmt.Errorf("starting invoke listener: %w", err)
	}
	defer tp.Stop()

	cfg := orbit.DefaultConfig()
	cfg.NodeIdentity = self

	stg := orbit.NewStage(cfg, directory.NewMemoryBackend(), tp)

	// Every peer named in --peers is assumed capable of serving the
	// requested interface — the operator is telling orbitctl where to
	// route, since a client with no local registry has no other way to
	// discover remote capability sets. The capability scan runs per-Stage,
	// not cluster-wide.
	for node := range addrBook {
		stg.AddPeer(node, []string{interfaceID})
	}

	if err := stg.Start(context.Background()); err != nil {
		return fmt.Errorf("starting client stage: %w", err)
	}
	defer stg.Stop(context.Background())

	proxies := orbit.NewActorProxyFactory(stg, invokeTimeoutMillis)
	proxy := proxies.GetReference(interfaceID, key)

	ctx, cancel := context.WithTimeout(context.Background(),
		durationFromMillis(invokeTimeoutMillis))
	defer cancel()

	result, err := proxy.Invoke(ctx, methodID, callArgs...)
	if err != nil {
		return fmt.Errorf("invoke %s/%s.%s: %w", interfaceID, key, methodID, err)
	}

	if outputFormat == "json" {
		return outputJSON(map[string]any{"result": result})
	}

	fmt.Println(result)
	return nil
}
