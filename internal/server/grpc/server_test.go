package grpc

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	pb "github.com/dmitrijs2005/audionotes/internal/proto"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const testNoteID = "11111111-1111-1111-1111-111111111111"

// memNotes holds a single pending note.
type memNotes struct {
	mu   sync.Mutex
	note models.Note
}

func newMemNotes() *memNotes {
	return &memNotes{note: models.Note{ID: testNoteID, Status: models.StatusPending, Revision: 1}}
}

func (m *memNotes) get(id string) (*models.Note, error) {
	if id != m.note.ID {
		return nil, common.ErrorNotFound
	}
	n := m.note
	return &n, nil
}

func (m *memNotes) move(id string, next models.Status) (*models.Note, error) {
	if id != m.note.ID {
		return nil, common.ErrorNotFound
	}
	st, err := m.note.Status.TransitionTo(next)
	if err != nil {
		return nil, err
	}
	m.note.Status = st
	m.note.Revision++
	n := m.note
	return &n, nil
}

func (m *memNotes) Get(ctx context.Context, id string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memNotes) MarkUploading(ctx context.Context, id string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(id, models.StatusUploading)
}

func (m *memNotes) CompleteUpload(ctx context.Context, id string, revision int64, filename, key, url string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revision != m.note.Revision {
		return nil, common.ErrVersionConflict
	}
	m.note.AudioFilename = filename
	m.note.AudioKey = &key
	return m.move(id, models.StatusPendingTranscription)
}

func (m *memNotes) FailUpload(ctx context.Context, id string, revision int64, reason string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revision != m.note.Revision {
		return nil, common.ErrVersionConflict
	}
	return m.move(id, models.StatusError)
}

type bufEnv struct {
	notes *memNotes
	conn  *grpc.ClientConn
}

func newBufEnv(t *testing.T) *bufEnv {
	t.Helper()

	notes := newMemNotes()
	h := upload.NewHandler(notes, objectstore.NewMemoryStore(""), progress.NewMemoryTracker(time.Minute), logging.Nop(), upload.Options{
		MetadataTimeout: time.Second,
		ChunkTimeout:    time.Second,
		MaxUploadBytes:  1 << 20,
	})

	s, err := NewGRPCServer("bufnet", logging.Nop(), h, 1<<20)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := s.newServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &bufEnv{notes: notes, conn: conn}
}

func recv(t *testing.T, stream grpc.ClientStream) *structpb.Struct {
	t.Helper()
	m := &structpb.Struct{}
	require.NoError(t, stream.RecvMsg(m))
	return m
}

func field(m *structpb.Struct, name string) *structpb.Value {
	return m.GetFields()[name]
}

func TestUpload_RoundTrip(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := pb.OpenUpload(ctx, e.conn, testNoteID)
	require.NoError(t, err)

	meta, err := pb.ControlFrame(map[string]any{"filename": "memo.ogg", "file_size": 10})
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(meta))
	assert.Equal(t, upload.StatusReady, field(recv(t, stream), "status").GetStringValue())

	for i, size := range []int{4, 6} {
		chunk, err := pb.ChunkFrame(bytes.Repeat([]byte{byte(i)}, size))
		require.NoError(t, err)
		require.NoError(t, stream.SendMsg(chunk))

		m := recv(t, stream)
		assert.Equal(t, upload.StatusProgress, field(m, "status").GetStringValue())
	}

	done := recv(t, stream)
	assert.Equal(t, upload.StatusCompleted, field(done, "status").GetStringValue())
	assert.Equal(t, upload.CompletedMessage, field(done, "message").GetStringValue())
	assert.NotEmpty(t, field(done, "file_key").GetStringValue())

	require.NoError(t, stream.CloseSend())
	assert.ErrorIs(t, stream.RecvMsg(&structpb.Struct{}), io.EOF)

	n, err := e.notes.Get(ctx, testNoteID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTranscription, n.Status)
	assert.Equal(t, "memo.ogg", n.AudioFilename)
}

func TestUpload_ProgressFields(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := pb.OpenUpload(ctx, e.conn, testNoteID)
	require.NoError(t, err)

	meta, _ := pb.ControlFrame(map[string]any{"file_size": 3})
	require.NoError(t, stream.SendMsg(meta))
	recv(t, stream)

	chunk, _ := pb.ChunkFrame([]byte{1})
	require.NoError(t, stream.SendMsg(chunk))

	m := recv(t, stream)
	assert.Equal(t, 33.33, field(m, "progress").GetNumberValue())
	assert.Equal(t, 1.0, field(m, "received").GetNumberValue())
}

func TestUpload_MissingNoteID(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := e.conn.NewStream(ctx, &pb.UploadServiceDesc.Streams[0], pb.UploadFullMethod)
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	err = stream.RecvMsg(&structpb.Struct{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUpload_UnknownNote(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := pb.OpenUpload(ctx, e.conn, "22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)

	m := recv(t, stream)
	assert.Equal(t, upload.StatusError, field(m, "status").GetStringValue())
	assert.Equal(t, "not_found", field(m, "code").GetStringValue())
}

func TestUpload_UnsupportedMessage(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := pb.OpenUpload(ctx, e.conn, testNoteID)
	require.NoError(t, err)

	bogus, err := anypb.New(wrapperspb.String("hello"))
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(bogus))

	m := recv(t, stream)
	assert.Equal(t, upload.StatusError, field(m, "status").GetStringValue())
	assert.Equal(t, "transport", field(m, "code").GetStringValue())
}

func TestHealth_Serving(t *testing.T) {
	e := newBufEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(e.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: pb.UploadServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:0", logging.Nop(), nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:99999", logging.Nop(), nil, 0)
	require.NoError(t, err)

	require.Error(t, srv.Run(context.Background()))
}
