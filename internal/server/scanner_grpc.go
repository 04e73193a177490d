package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ScannerServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages.
const ScannerServiceName = "idscan.v1.ScannerService"

const (
	MethodExtractText     = "ExtractText"
	MethodScanFile        = "ScanFile"
	MethodScanDirectory   = "ScanDirectory"
	MethodListDocuments   = "ListDocuments"
	MethodExportDocuments = "ExportDocuments"
)

func fullMethod(name string) string { return "/" + ScannerServiceName + "/" + name }

// ScannerServer is the server API for the scanner service.
type ScannerServer interface {
	ExtractText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScanFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScanDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type scannerCall func(ScannerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call scannerCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScannerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ScannerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ScannerServiceDesc describes the scanner service for grpc.ServiceRegistrar.
var ScannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ScannerServiceName,
	HandlerType: (*ScannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodExtractText, Handler: unaryHandler(MethodExtractText, ScannerServer.ExtractText)},
		{MethodName: MethodScanFile, Handler: unaryHandler(MethodScanFile, ScannerServer.ScanFile)},
		{MethodName: MethodScanDirectory, Handler: unaryHandler(MethodScanDirectory, ScannerServer.ScanDirectory)},
		{MethodName: MethodListDocuments, Handler: unaryHandler(MethodListDocuments, ScannerServer.ListDocuments)},
		{MethodName: MethodExportDocuments, Handler: unaryHandler(MethodExportDocuments, ScannerServer.ExportDocuments)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "idscan/v1/scanner.proto",
}

func RegisterScannerServer(s grpc.ServiceRegistrar, srv ScannerServer) {
	s.RegisterService(&ScannerServiceDesc, srv)
}

// ScannerClient calls the scanner service over a client connection.
type ScannerClient struct {
	cc grpc.ClientConnInterface
}

func NewScannerClient(cc grpc.ClientConnInterface) *ScannerClient {
	return &ScannerClient{cc: cc}
}

// Call invokes method with a request built from fields.
func (c *ScannerClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
