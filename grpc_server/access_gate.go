package grpcserver

import (
	"context"
	"errors"

	"permledger/models"
	"permledger/services"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AccessGateServiceName = "ledger.v1.AccessGate"

	HasAccessMethod = "/" + AccessGateServiceName + "/HasAccess"
	HasRoleMethod   = "/" + AccessGateServiceName + "/HasRole"
)

// AccessGateServer answers access and role queries for other services.
// Requests are structs with string fields: HasAccess takes "user" and
// "authority", HasRole takes "principal" and "role".
type AccessGateServer interface {
	HasAccess(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	HasRole(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

type accessGateServer struct {
	access services.AccessService
	roles  services.RoleService
}

var _ AccessGateServer = (*accessGateServer)(nil)

func NewAccessGateServer(access services.AccessService, roles services.RoleService) AccessGateServer {
	return &accessGateServer{access: access, roles: roles}
}

func (s *accessGateServer) HasAccess(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	user, err := requiredString(req, "user")
	if err != nil {
		return nil, err
	}
	authority, err := requiredString(req, "authority")
	if err != nil {
		return nil, err
	}

	ok, err := s.access.HasAccess(ctx, models.Principal(user), models.Principal(authority))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *accessGateServer) HasRole(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	principal, err := requiredString(req, "principal")
	if err != nil {
		return nil, err
	}
	role, err := requiredString(req, "role")
	if err != nil {
		return nil, err
	}

	has, err := s.roles.HasRole(ctx, models.Principal(principal), models.Role(role))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(has), nil
}

func requiredString(req *structpb.Struct, field string) (string, error) {
	v, ok := req.GetFields()[field]
	if !ok || v.GetStringValue() == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return v.GetStringValue(), nil
}

// toStatus maps ledger errors onto gRPC codes.
func toStatus(err error) error {
	lerr, ok := services.AsLedgerError(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	code := codes.Unknown
	switch lerr.Category {
	case services.CategoryValidation:
		code = codes.InvalidArgument
	case services.CategoryState:
		code = codes.FailedPrecondition
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrRoleNotFound) {
			code = codes.NotFound
		}
	case services.CategoryAuthorization:
		code = codes.PermissionDenied
	case services.CategoryConfiguration:
		code = codes.FailedPrecondition
	case services.CategoryExternal:
		code = codes.Aborted
	}
	return status.Error(code, err.Error())
}

func _AccessGate_HasAccess_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessGateServer).HasAccess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HasAccessMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccessGateServer).HasAccess(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _AccessGate_HasRole_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessGateServer).HasRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HasRoleMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccessGateServer).HasRole(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AccessGate_ServiceDesc describes ledger.v1.AccessGate. The messages are
// protobuf well-known types, so no generated code is involved.
var AccessGate_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AccessGateServiceName,
	HandlerType: (*AccessGateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HasAccess", Handler: _AccessGate_HasAccess_Handler},
		{MethodName: "HasRole", Handler: _AccessGate_HasRole_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/access_gate.proto",
}

// AccessGateClient calls ledger.v1.AccessGate.
type AccessGateClient struct {
	cc grpc.ClientConnInterface
}

func NewAccessGateClient(cc grpc.ClientConnInterface) *AccessGateClient {
	return &AccessGateClient{cc: cc}
}

func (c *AccessGateClient) HasAccess(ctx context.Context, user, authority string, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"user": user, "authority": authority})
	if err != nil {
		return false, err
	}
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, HasAccessMethod, in, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *AccessGateClient) HasRole(ctx context.Context, principal, role string, opts ...grpc.CallOption) (bool, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"principal": principal, "role": role})
	if err != nil {
		return false, err
	}
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, HasRoleMethod, in, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
