package grpcserver

import (
	"context"
	"errors"

	"permledger/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AuthServiceName = "ledger.v1.Auth"

	LoginMethod = "/" + AuthServiceName + "/Login"
)

// AuthServer exchanges a principal's secret for a bearer token. The request
// carries "principal" and "secret", the response carries "token".
type AuthServer interface {
	Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type authServer struct {
	credentials map[string]string
}

func NewAuthServer(credentials map[string]string) AuthServer {
	return &authServer{credentials: credentials}
}

func (s *authServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal, err := requiredString(req, "principal")
	if err != nil {
		return nil, err
	}
	secret, err := requiredString(req, "secret")
	if err != nil {
		return nil, err
	}

	token, err := auth.Login(s.credentials, principal, secret)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "could not generate token: %v", err)
	}
	return structpb.NewStruct(map[string]interface{}{"token": token})
}

func _Auth_Login_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServer).Login(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LoginMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthServer).Login(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var Auth_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: _Auth_Login_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/auth.proto",
}

// Login calls ledger.v1.Auth/Login and returns the issued token.
func Login(ctx context.Context, cc grpc.ClientConnInterface, principal, secret string, opts ...grpc.CallOption) (string, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"principal": principal, "secret": secret})
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, LoginMethod, in, out, opts...); err != nil {
		return "", err
	}
	return out.GetFields()["token"].GetStringValue(), nil
}
