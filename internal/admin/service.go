// Package admin exposes scheduler and session inspection over gRPC. The
// service uses the well-known protobuf types as its messages, so it is
// described by hand instead of generated from a .proto file.
package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fibula.admin.v1.SchedulerAdmin"

const (
	methodStats           = "/" + ServiceName + "/Stats"
	methodCancelRequestor = "/" + ServiceName + "/CancelRequestor"
	methodPlayers         = "/" + ServiceName + "/Players"
)

// SchedulerAdminServer is the server API of the admin service.
type SchedulerAdminServer interface {
	// Stats returns the scheduler counters as a struct of numbers.
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// CancelRequestor cancels every cancellable event of one creature and
	// returns how many were cancelled.
	CancelRequestor(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.Int32Value, error)
	// Players lists the names of connected players.
	Players(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// Scheduler is the part of event.Scheduler the admin service reads.
type Scheduler interface {
	Stats() event.Stats
	CancelAllFor(requestorID uint32, kinds ...string) int
}

// Roster lists connected players.
type Roster interface {
	Names() []string
}

// Database reports connection pool usage.
type Database interface {
	Stats() postgres.PoolStats
}

// Service implements SchedulerAdminServer.
type Service struct {
	sched  Scheduler
	roster Roster
	db     Database
}

// NewService creates a Service.
//
// Precondition: sched and roster must be non-nil.
func NewService(sched Scheduler, roster Roster) *Service {
	if sched == nil || roster == nil {
		panic("admin.NewService: scheduler and roster must not be nil")
	}
	return &Service{sched: sched, roster: roster}
}

// WithDatabase adds db's pool usage to Stats under "db_" keys.
//
// Precondition: db must be non-nil.
func (s *Service) WithDatabase(db Database) *Service {
	s.db = db
	return s
}

// Stats implements SchedulerAdminServer.
func (s *Service) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := s.sched.Stats()
	fields := map[string]any{
		"queued":    st.Queued,
		"capacity":  st.Capacity,
		"pending":   st.Pending,
		"fired":     float64(st.Fired),
		"cancelled": float64(st.Cancelled),
		"failed":    float64(st.Failed),
		"resizes":   float64(st.Resizes),
	}
	if s.db != nil {
		ps := s.db.Stats()
		fields["db_conns"] = float64(ps.Total)
		fields["db_idle"] = float64(ps.Idle)
		fields["db_acquired"] = float64(ps.Acquired)
		fields["db_max_conns"] = float64(ps.Max)
		fields["db_acquire_wait_ms"] = float64(ps.AcquireWait.Milliseconds())
	}
	return structpb.NewStruct(fields)
}

// CancelRequestor implements SchedulerAdminServer.
func (s *Service) CancelRequestor(_ context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.Int32Value, error) {
	if req.GetValue() == 0 {
		return nil, status.Error(codes.InvalidArgument, "requestor id must not be 0")
	}
	n := s.sched.CancelAllFor(req.GetValue())
	return wrapperspb.Int32(int32(n)), nil
}

// Players implements SchedulerAdminServer.
func (s *Service) Players(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	names := s.roster.Names()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	return structpb.NewList(values)
}

// RegisterSchedulerAdminServer registers srv on r.
func RegisterSchedulerAdminServer(r grpc.ServiceRegistrar, srv SchedulerAdminServer) {
	r.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "CancelRequestor", Handler: cancelRequestorHandler},
		{MethodName: "Players", Handler: playersHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerAdminServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStats}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerAdminServer).Stats(ctx, req.(*emptypb.Empty))
	})
}

func cancelRequestorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerAdminServer).CancelRequestor(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCancelRequestor}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerAdminServer).CancelRequestor(ctx, req.(*wrapperspb.UInt32Value))
	})
}

func playersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerAdminServer).Players(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPlayers}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerAdminServer).Players(ctx, req.(*emptypb.Empty))
	})
}

// Client calls the admin service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Stats calls SchedulerAdmin.Stats.
func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStats, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelRequestor calls SchedulerAdmin.CancelRequestor.
func (c *Client) CancelRequestor(ctx context.Context, id uint32, opts ...grpc.CallOption) (int32, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.cc.Invoke(ctx, methodCancelRequestor, wrapperspb.UInt32(id), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Players calls SchedulerAdmin.Players.
func (c *Client) Players(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodPlayers, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}
