// Command orbitd runs a single Orbit node: it wires a Stage to a directory
// backend and a transport, registers whatever addressable interfaces the
// embedding deployment needs, and blocks serving invocations until it
// receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/roasbeef/subtrate/internal/baselib/actor"
	"github.com/roasbeef/subtrate/internal/obuild"
	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/execution"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/pipeline"
	"github.com/roasbeef/subtrate/internal/orbitcore/router"
	"github.com/roasbeef/subtrate/internal/orbitcore/stage"
	"github.com/roasbeef/subtrate/internal/orbitcore/tracker"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/internal/orbitdocs"
	"github.com/roasbeef/subtrate/internal/orbitmcp"
	"github.com/roasbeef/subtrate/pkg/orbit"
)

func main() {
	var (
		nodeID       = flag.String("node", "node-1", "This node's identity within the cluster")
		clusterName  = flag.String("cluster", "default", "Cluster name this node joins")
		dbPath       = flag.String("db", "~/.orbit/directory.db", "Path to the SQLite placement directory (empty for an in-memory directory)")
		grpcAddr     = flag.String("grpc", ":7946", "gRPC transport listen address")
		peers        = flag.String("peers", "", "Comma-separated node=host:port peer address book entries")
		enableMCP    = flag.Bool("mcp", false, "Enable the MCP stdio introspection server")
		docsAddr     = flag.String("docs", "", "HTTP address to serve the runtime topology status page on (empty to disable)")
		logDir       = flag.String("log-dir", "~/.orbit/logs", "Directory for log files (empty to disable file logging)")
		maxLogFiles  = flag.Int("max-log-files", obuild.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileMB = flag.Int("max-log-file-size", obuild.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
	)
	flag.Parse()

	expandHome := func(path string) string {
		expanded := os.ExpandEnv(path)
		if expanded == path && len(path) > 0 && path[0] == '~' {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("Failed to get home directory: %v", err)
			}
			expanded = home + path[1:]
		}
		return expanded
	}

	dbPathExpanded := expandHome(*dbPath)
	logDirExpanded := expandHome(*logDir)

	var logRotator *obuild.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = obuild.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&obuild.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogFileMB,
		})
		if err != nil {
			log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()

			multiWriter := io.MultiWriter(os.Stderr, logRotator)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("orbitd version %s commit=%s go=%s",
		obuild.Version(), commitInfo(), obuild.GoVersion)

	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
		log.Printf("Log file rotation enabled: dir=%s, max_files=%d, max_size=%dMB",
			logDirExpanded, *maxLogFiles, *maxLogFileMB)
	}
	combinedHandler := obuild.NewHandlerSet(handlers...)
	rootLogger := btclog.NewSLogger(combinedHandler)

	actor.UseLogger(rootLogger.WithPrefix(actor.Subsystem))
	tracker.UseLogger(rootLogger.WithPrefix(tracker.Subsystem))
	execution.UseLogger(rootLogger.WithPrefix(execution.Subsystem))
	pipeline.UseLogger(rootLogger.WithPrefix(pipeline.Subsystem))
	router.UseLogger(rootLogger.WithPrefix(router.Subsystem))
	directory.UseLogger(rootLogger.WithPrefix(directory.Subsystem))
	stage.UseLogger(rootLogger.WithPrefix(stage.Subsystem))

	var backend directory.AddressableDirectory
	if dbPathExpanded == "" {
		backend = directory.NewMemoryBackend()
	} else {
		sqliteBackend, err := directory.NewSqliteBackend(directory.SqliteConfig{
			DatabaseFileName: dbPathExpanded,
		})
		if err != nil {
			log.Fatalf("Failed to open directory database: %v", err)
		}
		defer sqliteBackend.Close()
		backend = sqliteBackend
	}

	addrBook := parsePeerAddrBook(*peers)

	grpcTransport := transport.NewGrpcTransport(
		netid.NodeIdentity(*nodeID),
		transport.DefaultGrpcServerConfig(*grpcAddr),
		addrBook,
	)
	if err := grpcTransport.Start(); err != nil {
		log.Fatalf("Failed to start gRPC transport: %v", err)
	}
	defer grpcTransport.Stop()
	log.Printf("gRPC transport listening on %s", grpcTransport.Addr())

	cfg := orbit.DefaultConfig()
	cfg.NodeIdentity = netid.NodeIdentity(*nodeID)
	cfg.ClusterName = *clusterName
	cfg.Mode = netid.ModeHost
	cfg.ErrorHandler = func(source string, err error) {
		log.Printf("orbitd: error from %s: %v", source, err)
	}

	orbitStage := orbit.NewStage(cfg, backend, grpcTransport)

	// A minimal self-describing addressable so a freshly started node has
	// something to invoke end to end before an embedding application
	// registers its own interfaces.
	orbitStage.Register(capability.Definition{
		InterfaceID:   "NodeStatus",
		Lifecycle:     capability.LifecyclePolicy{AutoActivate: true, AutoDeactivate: true},
		Routing:       capability.RoutingPolicy{PreferLocal: true},
		TimeoutMillis: 5000,
	}, func() any { return &nodeStatusAddressable{stage: orbitStage} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orbitStage.Start(ctx); err != nil {
		log.Fatalf("Failed to start stage: %v", err)
	}
	defer orbitStage.Stop(context.Background())

	var mcpServer *orbitmcp.Server
	if *enableMCP {
		mcpServer = orbitmcp.NewServer(orbitStage)
	}

	if *docsAddr != "" {
		docsServer := orbitdocs.NewServer(orbitStage, *docsAddr)
		go func() {
			if err := docsServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("orbitd: docs server error: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			docsServer.Shutdown(shutdownCtx)
		}()
		log.Printf("Runtime topology status page listening on %s", *docsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %v, initiating graceful shutdown (send again to force exit)...", sig)
		cancel()

		sig = <-sigCh
		log.Printf("Received %v again, forcing immediate exit", sig)
		os.Exit(1)
	}()

	if *enableMCP {
		log.Println("Starting orbitd MCP introspection server...")
		if err := mcpServer.Run(ctx); err != nil {
			log.Fatalf("MCP server error: %v", err)
		}
	} else {
		log.Printf("Node %s running in cluster %q, listening on %s", *nodeID, *clusterName, grpcTransport.Addr())
		<-ctx.Done()
	}
}

// nodeStatusAddressable is the always-available interface that reports this
// node's own identity and active-handler count, useful as a liveness probe
// reachable through the same invocation path as any other addressable.
type nodeStatusAddressable struct {
	stage *orbit.Stage
}

func (n *nodeStatusAddressable) Invoke(_ context.Context, methodID string, _ []any) (any, error) {
	switch methodID {
	case "activeCount":
		return n.stage.ActiveCount(), nil
	default:
		info := n.stage.NetSystem().Self()
		return info, nil
	}
}

// parsePeerAddrBook parses a "node=host:port,node2=host2:port2" flag value
// into the map NewGrpcTransport expects.
func parsePeerAddrBook(raw string) map[netid.NodeIdentity]string {
	book := make(map[netid.NodeIdentity]string)
	if raw == "" {
		return book
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		book[netid.NodeIdentity(parts[0])] = parts[1]
	}

	return book
}

// commitInfo returns the best available commit identifier.
func commitInfo() string {
	if obuild.Commit != "" {
		return obuild.Commit
	}
	if obuild.CommitHash != "" {
		return obuild.CommitHash
	}

	return "dev"
}
