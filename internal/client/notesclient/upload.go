package notesclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	pb "github.com/dmitrijs2005/audionotes/internal/proto"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// UploadEvent is one server message of an upload session.
type UploadEvent struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Received *int64   `json:"received,omitempty"`
	FileKey  string   `json:"file_key,omitempty"`
	AudioURL string   `json:"audio_url,omitempty"`
	Message  string   `json:"message,omitempty"`
	Code     string   `json:"code,omitempty"`
}

// UploadError is an error message sent by the server.
type UploadError struct {
	Code    string
	Message string
}

func (e *UploadError) Error() string {
	if e.Code == "" {
		return "upload failed: " + e.Message
	}
	return fmt.Sprintf("upload failed (%s): %s", e.Code, e.Message)
}

// UploadResult describes a finished upload.
type UploadResult struct {
	FileKey  string
	AudioURL string
	Message  string
	Sent     int64
}

// uploadConn is one duplex upload channel.
type uploadConn interface {
	sendMetadata(filename string, size int64) error
	sendChunk(data []byte) error
	recv() (UploadEvent, error)
	close() error
}

// Upload streams size bytes from r over the WebSocket channel. onEvent, if
// set, sees every server message.
func (c *Client) Upload(ctx context.Context, noteID, filename string, r io.Reader, size int64, onEvent func(UploadEvent)) (*UploadResult, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/upload/" + url.PathEscape(noteID)

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial upload channel: %w", err)
	}
	return c.runUpload(ctx, &wsConn{conn: conn}, filename, r, size, onEvent)
}

// UploadGRPC is Upload over the gRPC stream.
func (c *Client) UploadGRPC(ctx context.Context, noteID, filename string, r io.Reader, size int64, onEvent func(UploadEvent)) (*UploadResult, error) {
	cc, err := grpc.NewClient(c.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}
	defer cc.Close()

	return c.uploadOverConn(ctx, cc, noteID, filename, r, size, onEvent)
}

func (c *Client) uploadOverConn(ctx context.Context, cc grpc.ClientConnInterface, noteID, filename string, r io.Reader, size int64, onEvent func(UploadEvent)) (*UploadResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := pb.OpenUpload(ctx, cc, noteID)
	if err != nil {
		return nil, fmt.Errorf("open upload stream: %w", err)
	}
	return c.runUpload(ctx, &grpcConn{stream: stream}, filename, r, size, onEvent)
}

func (c *Client) runUpload(ctx context.Context, conn uploadConn, filename string, r io.Reader, size int64, onEvent func(UploadEvent)) (*UploadResult, error) {
	defer conn.close()

	// unblock reads and writes when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.close() })
	defer stop()

	next := func() (UploadEvent, error) {
		ev, err := conn.recv()
		if err != nil {
			if ctx.Err() != nil {
				return ev, ctx.Err()
			}
			return ev, fmt.Errorf("upload channel: %w", err)
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Status == "error" {
			return ev, &UploadError{Code: ev.Code, Message: ev.Message}
		}
		return ev, nil
	}

	if err := conn.sendMetadata(filename, size); err != nil {
		return nil, fmt.Errorf("send metadata: %w", err)
	}
	if ev, err := next(); err != nil {
		return nil, err
	} else if ev.Status != "ready" {
		return nil, fmt.Errorf("unexpected %q message before transfer", ev.Status)
	}

	buf := make([]byte, c.chunkSize)
	var sent int64
	for sent < size {
		n, err := io.ReadFull(r, buf[:min(int64(len(buf)), size-sent)])
		if n > 0 {
			if err := conn.sendChunk(buf[:n]); err != nil {
				return nil, fmt.Errorf("send chunk: %w", err)
			}
			sent += int64(n)
			if _, err := next(); err != nil {
				return nil, err
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if sent < size {
				return nil, fmt.Errorf("source ended after %d of %d bytes", sent, size)
			}
			break
		}
		if err != nil {
			return nil, err
		}
	}

	ev, err := next()
	if err != nil {
		return nil, err
	}
	if ev.Status != "completed" {
		return nil, fmt.Errorf("unexpected %q message after transfer", ev.Status)
	}
	return &UploadResult{FileKey: ev.FileKey, AudioURL: ev.AudioURL, Message: ev.Message, Sent: sent}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) sendMetadata(filename string, size int64) error {
	return w.conn.WriteJSON(map[string]any{"filename": filename, "file_size": size})
}

func (w *wsConn) sendChunk(data []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) recv() (UploadEvent, error) {
	var ev UploadEvent
	err := w.conn.ReadJSON(&ev)
	return ev, err
}

func (w *wsConn) close() error {
	return w.conn.Close()
}

type grpcConn struct {
	stream grpc.ClientStream
}

func (g *grpcConn) sendMetadata(filename string, size int64) error {
	msg, err := pb.ControlFrame(map[string]any{"filename": filename, "file_size": size})
	if err != nil {
		return err
	}
	return g.stream.SendMsg(msg)
}

func (g *grpcConn) sendChunk(data []byte) error {
	msg, err := pb.ChunkFrame(data)
	if err != nil {
		return err
	}
	return g.stream.SendMsg(msg)
}

func (g *grpcConn) recv() (UploadEvent, error) {
	st := &structpb.Struct{}
	if err := g.stream.RecvMsg(st); err != nil {
		return UploadEvent{}, err
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return UploadEvent{}, err
	}
	var ev UploadEvent
	err = json.Unmarshal(data, &ev)
	return ev, err
}

func (g *grpcConn) close() error {
	return g.stream.CloseSend()
}
