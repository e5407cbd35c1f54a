package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// CodecName is the gRPC content-subtype used for pushes.
const CodecName = "msgpack"

const pushMethod = "/dbmq.Delivery/Push"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

// msgpackCodec lets plain Go structs travel over gRPC without generated
// protobuf code.
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return CodecName }

// PushResponse acknowledges a gRPC push.
type PushResponse struct{}

// DeliveryServer is the server API of the dbmq.Delivery service.
type DeliveryServer interface {
	Push(ctx context.Context, env *Envelope) (*PushResponse, error)
}

var deliveryServiceDesc = grpc.ServiceDesc{
	ServiceName: "dbmq.Delivery",
	HandlerType: (*DeliveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler:    deliveryPushHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "delivery",
}

func deliveryPushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeliveryServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: pushMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeliveryServer).Push(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// SinkHandler receives pushed envelopes.
type SinkHandler func(ctx context.Context, env *Envelope) error

// Sink is the receiving end of GRPCPusher, for subscribers written in Go.
type Sink struct {
	handler SinkHandler
}

// NewSink creates a sink that hands every push to h.
func NewSink(h SinkHandler) *Sink {
	return &Sink{handler: h}
}

// Register installs the delivery service on srv.
func (s *Sink) Register(srv *grpc.Server) {
	srv.RegisterService(&deliveryServiceDesc, s)
}

func (s *Sink) Push(ctx context.Context, env *Envelope) (*PushResponse, error) {
	if err := s.handler(ctx, env); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &PushResponse{}, nil
}

// GRPCConfig configures the gRPC pusher.
type GRPCConfig struct {
	// DialOptions are appended to the defaults (insecure transport).
	DialOptions []grpc.DialOption

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// GRPCPusher calls dbmq.Delivery/Push on grpc://host:port subscribers.
// Connections are pooled per host.
type GRPCPusher struct {
	cfg *GRPCConfig

	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn // host -> connection

	log *slog.Logger
}

// NewGRPCPusher creates a gRPC pusher.
func NewGRPCPusher(cfg *GRPCConfig) *GRPCPusher {
	if cfg == nil {
		cfg = &GRPCConfig{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GRPCPusher{
		cfg:   cfg,
		conns: make(map[string]*grpc.ClientConn),
		log:   cfg.Logger,
	}
}

func (p *GRPCPusher) Push(ctx context.Context, req *Request) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("subscriber url: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("subscriber url %q: missing host", req.URL)
	}

	conn, err := p.getConn(u.Host)
	if err != nil {
		return err
	}

	return conn.Invoke(ctx, pushMethod, NewEnvelope(req), new(PushResponse),
		grpc.CallContentSubtype(CodecName))
}

func (p *GRPCPusher) getConn(host string) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.conns[host]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if conn, ok := p.conns[host]; ok {
		return conn, nil
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, p.cfg.DialOptions...)

	conn, err := grpc.NewClient("passthrough:///"+host, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	p.log.Debug("grpc subscriber connection opened", "host", host)
	p.conns[host] = conn
	return conn, nil
}

// Close closes all pooled connections.
func (p *GRPCPusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for host, conn := range p.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.conns, host)
	}
	return errors.Join(errs...)
}

var _ Pusher = (*GRPCPusher)(nil)
