package grpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var errStreamClosed = errors.New("upload stream closed")

// Upload serves one session. Session failures are reported in-band, so the
// RPC itself only fails when the note id is missing.
func (s *GRPCServer) Upload(stream grpc.ServerStream) error {
	ctx := stream.Context()

	var noteID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.NoteIDHeaderName); len(values) > 0 {
			noteID = values[0]
		}
	}
	if noteID == "" {
		return status.Error(codes.InvalidArgument, "missing note-id metadata")
	}

	state := s.uploads.Serve(ctx, newStreamTransport(stream), noteID)
	s.logger.Debug(ctx, "upload stream ended", "note_id", noteID, "state", string(state))
	return nil
}

// streamTransport adapts a server stream to upload.Transport. A pending
// RecvMsg is released when the handler returns and gRPC ends the stream.
type streamTransport struct {
	stream grpc.ServerStream

	mu     sync.Mutex
	closed bool
}

func newStreamTransport(stream grpc.ServerStream) *streamTransport {
	return &streamTransport{stream: stream}
}

func (t *streamTransport) ReadFrame() (upload.Frame, error) {
	msg := &anypb.Any{}
	if err := t.stream.RecvMsg(msg); err != nil {
		return upload.Frame{}, err
	}

	switch {
	case msg.MessageIs(&structpb.Struct{}):
		st := &structpb.Struct{}
		if err := msg.UnmarshalTo(st); err != nil {
			return upload.Frame{}, err
		}
		data, err := protojson.Marshal(st)
		if err != nil {
			return upload.Frame{}, err
		}
		return upload.Frame{Kind: upload.TextFrame, Data: data}, nil

	case msg.MessageIs(&wrapperspb.BytesValue{}):
		b := &wrapperspb.BytesValue{}
		if err := msg.UnmarshalTo(b); err != nil {
			return upload.Frame{}, err
		}
		return upload.Frame{Kind: upload.BinaryFrame, Data: b.Value}, nil

	default:
		return upload.Frame{}, fmt.Errorf("unsupported message type %q", msg.GetTypeUrl())
	}
}

func (t *streamTransport) WriteMessage(m upload.Message) error {
	st, err := messageStruct(m)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errStreamClosed
	}
	return t.stream.SendMsg(st)
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// messageStruct converts m to a Struct with the same fields as its JSON
// form.
func messageStruct(m upload.Message) (*structpb.Struct, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}
