package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbiterrors"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbitretry"
)

// rawCodec is a grpc/encoding.Codec that treats the wire message as an
// opaque []byte, since the pipeline's Serialization step has already
// produced the bytes Transport is asked to carry — there is no protobuf
// message type here to generate stubs for.
type rawCodec struct{}

const rawCodecName = "orbit-raw"

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("rawCodec: unsupported type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("rawCodec: unsupported type %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return rawCodecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// GrpcServerConfig holds the transport's listen address and its gRPC
// keepalive tunables.
type GrpcServerConfig struct {
	ListenAddr string

	ServerPingTime               time.Duration
	ServerPingTimeout            time.Duration
	ClientPingMinWait            time.Duration
	ClientAllowPingWithoutStream bool
}

// DefaultGrpcServerConfig returns a GrpcServerConfig for listenAddr with the
// default keepalive settings.
func DefaultGrpcServerConfig(listenAddr string) GrpcServerConfig {
	return GrpcServerConfig{
		ListenAddr:                   listenAddr,
		ServerPingTime:               5 * time.Minute,
		ServerPingTimeout:            1 * time.Minute,
		ClientPingMinWait:            5 * time.Second,
		ClientAllowPingWithoutStream: true,
	}
}

const transportServiceName = "orbit.Transport"

var transportServiceDesc = grpc.ServiceDesc{
	ServiceName: transportServiceName,
	HandlerType: (*grpcTransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler: func(srv any, ctx context.Context,
				dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {

				var payload []byte
				if err := dec(&payload); err != nil {
					return nil, err
				}

				server := srv.(*grpcTransportServer)
				return &payload, server.handle(ctx, payload)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
	Metadata: "orbit_transport.proto",
}

// grpcTransportServer adapts the raw unary RPC above to a ReceiveHandler.
type grpcTransportServer struct {
	self    netid.NodeIdentity
	handler ReceiveHandler
}

func (s *grpcTransportServer) handle(ctx context.Context, payload []byte) error {
	if s.handler == nil {
		return status.Error(codes.Unavailable, "no receive handler installed")
	}

	// The sender's identity travels inside payload (stamped by the
	// Identity pipeline step as Message.Source); the transport layer
	// itself does not need to know who is calling.
	s.handler(ctx, "", payload)

	return nil
}

// GrpcTransport is a Transport backed by google.golang.org/grpc, dialing
// peers lazily and caching connections by node identity.
type GrpcTransport struct {
	cfg  GrpcServerConfig
	self netid.NodeIdentity

	addrBook map[netid.NodeIdentity]string

	grpcServer *grpc.Server
	listener   net.Listener

	mu    sync.Mutex
	conns map[netid.NodeIdentity]*grpc.ClientConn

	handler ReceiveHandler
}

// NewGrpcTransport creates a GrpcTransport for the local node, given a
// static address book mapping peer NodeIdentity to dial target. A real
// deployment would resolve addresses via service discovery; a static map
// is sufficient for the core's needs since address resolution is outside
// this runtime's scope.
func NewGrpcTransport(self netid.NodeIdentity, cfg GrpcServerConfig,
	addrBook map[netid.NodeIdentity]string) *GrpcTransport {

	return &GrpcTransport{
		cfg:      cfg,
		self:     self,
		addrBook: addrBook,
		conns:    make(map[netid.NodeIdentity]*grpc.ClientConn),
	}
}

// SetReceiveHandler implements Transport.
func (t *GrpcTransport) SetReceiveHandler(handler ReceiveHandler) {
	t.handler = handler
}

// Start begins listening and serving the transport's gRPC service.
func (t *GrpcTransport) Start() error {
	lis, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v",
			orbiterrors.ErrTransport, t.cfg.ListenAddr, err)
	}
	t.listener = lis

	serverKeepalive := keepalive.ServerParameters{
		Time:    t.cfg.ServerPingTime,
		Timeout: t.cfg.ServerPingTimeout,
	}
	clientKeepalive := keepalive.EnforcementPolicy{
		MinTime:             t.cfg.ClientPingMinWait,
		PermitWithoutStream: t.cfg.ClientAllowPingWithoutStream,
	}

	t.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(serverKeepalive),
		grpc.KeepaliveEnforcementPolicy(clientKeepalive),
		grpc.ForceServerCodec(rawCodec{}),
	)

	t.grpcServer.RegisterService(&transportServiceDesc, &grpcTransportServer{
		self:    t.self,
		handler: t.handler,
	})

	go func() {
		_ = t.grpcServer.Serve(lis)
	}()

	return nil
}

// Stop gracefully shuts the transport's server down and closes all dialed
// connections.
func (t *GrpcTransport) Stop() {
	if t.grpcServer != nil {
		t.grpcServer.GracefulStop()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range t.conns {
		_ = conn.Close()
	}
}

// Addr returns the address the transport is listening on.
func (t *GrpcTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// dial returns a cached connection to the node, dialing lazily on first
// use.
func (t *GrpcTransport) dial(to netid.NodeIdentity) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[to]; ok {
		return conn, nil
	}

	addr, ok := t.addrBook[to]
	if !ok {
		return nil, fmt.Errorf("%w: no known address for node %q",
			orbiterrors.ErrTransport, to)
	}

	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v",
			orbiterrors.ErrTransport, addr, err)
	}

	t.conns[to] = conn

	return conn, nil
}

// sendRetryConfig bounds Send's retry loop to failures worth riding out
// within a single invocation's timeout: a handful of fast retries rather
// than orbitretry.DefaultConfig's multi-second backoff ceiling.
var sendRetryConfig = orbitretry.Config{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Factor:       2.0,
}

// Send implements Transport. A dial or RPC failure classified as transient
// (the peer is momentarily unreachable) is retried per sendRetryConfig;
// anything else — an unknown node, a malformed payload — fails immediately
// since no amount of retrying changes the outcome.
func (t *GrpcTransport) Send(ctx context.Context, to netid.NodeIdentity,
	payload []byte) error {

	return orbitretry.Attempt(ctx, sendRetryConfig, func(ctx context.Context) error {
		conn, err := t.dial(to)
		if err != nil {
			return orbitretry.Permanent(err)
		}

		var reply []byte
		err = conn.Invoke(ctx, "/"+transportServiceName+"/Send", &payload, &reply)
		if err != nil {
			wrapped := fmt.Errorf("%w: send to %s: %v",
				orbiterrors.ErrTransport, to, err)
			if status.Code(err) == codes.Unavailable {
				return wrapped
			}
			return orbitretry.Permanent(wrapped)
		}

		return nil
	})
}

var _ Transport = (*GrpcTransport)(nil)
