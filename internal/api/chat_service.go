package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Chat is the chat client surface the service drives.
type Chat interface {
	State() client.State
	Connect(ctx context.Context) error
	JoinRoom(roomName, pseudo string) error
	SendMessage(text string) error
	SendGeolocation(pos chat.Position) error
	SendImage(ctx context.Context, id, data string) error
	Disconnect()
}

// RoomLister lists rooms known to the backend.
type RoomLister interface {
	GetRooms(ctx context.Context) ([]string, error)
}

// ChatService implements ChatServiceServer on top of the chat client.
type ChatService struct {
	profile   string
	startedAt time.Time
	chat      Chat
	rooms     RoomLister
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ ChatServiceServer = (*ChatService)(nil)

// NewChatService creates the service. rooms may be nil.
func NewChatService(profile string, c Chat, rooms RoomLister, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		profile:   profile,
		startedAt: time.Now(),
		chat:      c,
		rooms:     rooms,
		bus:       b,
		logger:    logger,
	}
}

func (s *ChatService) GetState(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.state()
}

func (s *ChatService) Connect(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.chat.Connect(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "connect: %v", err)
	}
	return s.state()
}

func (s *ChatService) JoinRoom(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	fields := in.GetFields()
	room := strings.TrimSpace(fields["room"].GetStringValue())
	if room == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "room is required")
	}
	pseudo := strings.TrimSpace(fields["pseudo"].GetStringValue())
	if pseudo == "" {
		pseudo = s.chat.State().Pseudo
	}
	if err := s.chat.JoinRoom(room, pseudo); err != nil {
		return nil, toStatus("join room", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatService) SendMessage(_ context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.chat.SendMessage(in.GetValue()); err != nil {
		return nil, toStatus("send message", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatService) SendGeolocation(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	fields := in.GetFields()
	lat, okLat := number(fields["lat"])
	lng, okLng := number(fields["lng"])
	if !okLat || !okLng {
		return nil, grpcstatus.Error(codes.InvalidArgument, "lat and lng are required numbers")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "position out of range: %v,%v", lat, lng)
	}
	pos := chat.Position{Lat: lat, Lng: lng}
	if acc, ok := number(fields["accuracy"]); ok {
		pos.Accuracy = &acc
	}
	if err := s.chat.SendGeolocation(pos); err != nil {
		return nil, toStatus("send geolocation", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatService) SendImage(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	fields := in.GetFields()
	id := strings.TrimSpace(fields["id"].GetStringValue())
	data := fields["data"].GetStringValue()
	if id == "" || data == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "id and data are required")
	}
	if err := s.chat.SendImage(ctx, id, data); err != nil {
		return nil, toStatus("send image", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatService) Disconnect(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.chat.Disconnect()
	return s.state()
}

func (s *ChatService) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if s.rooms == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "remote api not configured")
	}
	rooms, err := s.rooms.GetRooms(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "list rooms: %v", err)
	}
	values := make([]*structpb.Value, len(rooms))
	for i, r := range rooms {
		values[i] = structpb.NewStringValue(r)
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *ChatService) WatchEvents(in *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe(in.GetValue(), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			env, err := s.envelope(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) envelope(evt bus.Event) (*structpb.Struct, error) {
	payload, err := plain(evt.Payload)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"event_id":            uuid.NewString(),
		"profile":             s.profile,
		"kind":                evt.Kind,
		"occurred_at_unix_ms": evt.Timestamp.UnixMilli(),
		"payload":             payload,
	})
}

func (s *ChatService) state() (*structpb.Struct, error) {
	st := s.chat.State()
	fields, err := StateFields(st)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode state: %v", err)
	}
	fields["profile"] = s.profile
	fields["uptime_ms"] = time.Since(s.startedAt).Milliseconds()
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode state: %v", err)
	}
	return out, nil
}

// StateFields flattens a client state into structpb-compatible values.
func StateFields(st client.State) (map[string]any, error) {
	msgs := make([]any, len(st.Messages))
	for i, m := range st.Messages {
		v, err := plain(m)
		if err != nil {
			return nil, err
		}
		msgs[i] = v
	}
	clients, err := plain(st.Clients)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"connected":  st.Connected,
		"connecting": st.Connecting,
		"error":      st.Error,
		"room":       st.RoomName,
		"pseudo":     st.Pseudo,
		"messages":   msgs,
		"clients":    clients,
	}, nil
}

// plain converts v to JSON-shaped values that structpb accepts.
func plain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func number(v *structpb.Value) (float64, bool) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, false
	}
	return n.NumberValue, true
}

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, transport.ErrNotConnected):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: not connected", op)
	case errors.Is(err, client.ErrNoImageStore):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
