// Package proto describes the streaming upload service. The service has a
// single bidirectional method and uses well-known protobuf types for its
// messages, so the descriptor is declared by hand instead of generated:
//
//	service UploadService {
//	  // client: Any(Struct) control frames and Any(BytesValue) chunks
//	  // server: Struct with the same fields as the WebSocket JSON messages
//	  rpc Upload(stream google.protobuf.Any) returns (stream google.protobuf.Struct);
//	}
package proto

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	UploadServiceName  = "audionotes.v1.UploadService"
	UploadFullMethod   = "/audionotes.v1.UploadService/Upload"
	uploadStreamName   = "Upload"
	uploadProtoPackage = "audionotes/v1/upload.proto"
)

// UploadServiceServer is implemented by the server side of the upload stream.
type UploadServiceServer interface {
	Upload(stream grpc.ServerStream) error
}

func uploadHandler(srv any, stream grpc.ServerStream) error {
	return srv.(UploadServiceServer).Upload(stream)
}

var UploadServiceDesc = grpc.ServiceDesc{
	ServiceName: UploadServiceName,
	HandlerType: (*UploadServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    uploadStreamName,
			Handler:       uploadHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: uploadProtoPackage,
}

func RegisterUploadServiceServer(s grpc.ServiceRegistrar, srv UploadServiceServer) {
	s.RegisterService(&UploadServiceDesc, srv)
}

// OpenUpload starts an upload stream for noteID.
func OpenUpload(ctx context.Context, cc grpc.ClientConnInterface, noteID string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, common.NoteIDHeaderName, noteID)
	return cc.NewStream(ctx, &UploadServiceDesc.Streams[0], UploadFullMethod, opts...)
}

// ControlFrame wraps a JSON-like map as a control message.
func ControlFrame(fields map[string]any) (*anypb.Any, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("control frame: %w", err)
	}
	return anypb.New(s)
}

// ChunkFrame wraps payload bytes as a chunk message.
func ChunkFrame(data []byte) (*anypb.Any, error) {
	return anypb.New(wrapperspb.Bytes(data))
}
