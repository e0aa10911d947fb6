package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/idot-digital/events-api/internal/models"
	"github.com/idot-digital/events-api/internal/store"
)

// EventStoreServiceName is the fully qualified gRPC service name.
const EventStoreServiceName = "eventsdb.v1.EventStore"

// EventStoreServer is the gRPC counterpart of the REST routes. Messages
// are protobuf well-known types so no generated code is needed.
type EventStoreServer interface {
	GetEvent(context.Context, *wrapperspb.StringValue) (*structpb.Value, error)
	AddEvent(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	// UpdateEvent takes {"id": string, "patch": object}.
	UpdateEvent(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	DeleteEvent(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// ChangeReaction takes {"id": string, "reactionType": string}.
	ChangeReaction(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
}

var EventStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: EventStoreServiceName,
	HandlerType: (*EventStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetEvent", EventStoreServer.GetEvent),
		unary("AddEvent", EventStoreServer.AddEvent),
		unary("UpdateEvent", EventStoreServer.UpdateEvent),
		unary("DeleteEvent", EventStoreServer.DeleteEvent),
		unary("ChangeReaction", EventStoreServer.ChangeReaction),
	},
	Metadata: "eventsdb/v1/events.proto",
}

func RegisterEventStoreServer(s grpc.ServiceRegistrar, srv EventStoreServer) {
	s.RegisterService(&EventStoreServiceDesc, srv)
}

// unary builds the method descriptor for one call. Req is always a
// pointer to a protobuf message.
func unary[Req any, Resp any](method string, call func(EventStoreServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EventStoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + EventStoreServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(EventStoreServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GRPCHandlers implements EventStoreServer on top of an event store
type GRPCHandlers struct {
	store  store.EventStore
	logger *slog.Logger
}

func NewGRPCHandlers(s store.EventStore, logger *slog.Logger) *GRPCHandlers {
	return &GRPCHandlers{store: s, logger: logger}
}

func (h *GRPCHandlers) GetEvent(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Value, error) {
	event, err := h.store.GetByID(ctx, req.GetValue())
	if err != nil {
		h.logger.Error("Failed to get event", "id", req.GetValue(), "error", err)
		return nil, status.Error(codes.Internal, "Failed to get event")
	}
	if event == nil {
		return structpb.NewNullValue(), nil
	}
	v, err := toValue(event)
	if err != nil {
		h.logger.Error("Failed to encode event", "id", event.ID, "error", err)
		return nil, status.Error(codes.Internal, "Failed to encode event")
	}
	return v, nil
}

func (h *GRPCHandlers) AddEvent(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	events, err := h.store.Add(ctx, models.Fields(req.AsMap()))
	if err != nil {
		h.logger.Error("Failed to add event", "error", err)
		return nil, status.Error(codes.Internal, "Failed to add event")
	}
	return h.toList(events)
}

func (h *GRPCHandlers) UpdateEvent(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}
	patch := models.Fields{}
	if v, ok := req.GetFields()["patch"]; ok {
		s := v.GetStructValue()
		if s == nil {
			return nil, status.Error(codes.InvalidArgument, "patch must be an object")
		}
		patch = models.Fields(s.AsMap())
	}

	events, err := h.store.Update(ctx, id, patch)
	if err != nil {
		h.logger.Error("Failed to update event", "id", id, "error", err)
		return nil, status.Error(codes.Internal, "Failed to update event")
	}
	return h.toList(events)
}

func (h *GRPCHandlers) DeleteEvent(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	events, err := h.store.Delete(ctx, req.GetValue())
	if err != nil {
		h.logger.Error("Failed to delete event", "id", req.GetValue(), "error", err)
		return nil, status.Error(codes.Internal, "Failed to delete event")
	}
	return h.toList(events)
}

func (h *GRPCHandlers) ChangeReaction(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}
	reactionType, err := stringField(req, "reactionType")
	if err != nil {
		return nil, err
	}

	total, err := h.store.ChangeReaction(ctx, id, reactionType)
	if err != nil {
		h.logger.Error("Failed to change reaction", "id", id, "reaction_type", reactionType, "error", err)
		return nil, status.Error(codes.Internal, "Failed to change reaction")
	}
	return wrapperspb.Int64(total), nil
}

func (h *GRPCHandlers) toList(events []models.Event) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, 0, len(events))
	for i := range events {
		v, err := toValue(&events[i])
		if err != nil {
			h.logger.Error("Failed to encode event", "id", events[i].ID, "error", err)
			return nil, status.Error(codes.Internal, "Failed to encode events")
		}
		values = append(values, v)
	}
	return &structpb.ListValue{Values: values}, nil
}

// toValue goes through JSON so the gRPC view matches the REST body.
func toValue(e *models.Event) (*structpb.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("convert event %q: %w", e.ID, err)
	}
	return structpb.NewStructValue(s), nil
}

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", name)
	}
	return s.StringValue, nil
}
