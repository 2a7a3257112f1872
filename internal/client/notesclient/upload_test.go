package notesclient

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clientconfig "github.com/dmitrijs2005/audionotes/internal/client/config"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	pb "github.com/dmitrijs2005/audionotes/internal/proto"
	"github.com/dmitrijs2005/audionotes/internal/server/config"
	"github.com/dmitrijs2005/audionotes/internal/server/dispatch"
	gs "github.com/dmitrijs2005/audionotes/internal/server/grpc"
	"github.com/dmitrijs2005/audionotes/internal/server/httpapi"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/audionotes/internal/server/services"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type stack struct {
	api     *httptest.Server
	uploads *upload.Handler
	client  *Client
}

// newStack runs the real server components on sqlite and in-memory storage.
func newStack(t *testing.T, chunkSize int) *stack {
	t.Helper()
	ctx := context.Background()

	m := &repomanager.SQLiteRepositoryManager{}
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := m.Open(ctx, fmt.Sprintf("file:client_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, m.RunMigrations(ctx, db))

	cfg := &config.Config{}
	cfg.LoadDefaults()

	store := objectstore.NewMemoryStore("")
	tracker := progress.NewMemoryTracker(time.Minute)
	disp := dispatch.NewEventDispatcher(dispatch.NewLogPublisher(logging.Nop()))
	svc := services.NewNoteService(db, m, store, disp, logging.Nop(), cfg)
	uploads := upload.NewHandler(svc, store, tracker, logging.Nop(), upload.OptionsFromConfig(cfg))

	api := httptest.NewServer(httpapi.NewServer(cfg, logging.Nop(), svc, uploads, tracker).Handler())
	t.Cleanup(api.Close)

	ccfg := &clientconfig.Config{}
	ccfg.LoadDefaults()
	ccfg.ServerURL = api.URL
	ccfg.ChunkSize = chunkSize
	c, err := New(ccfg)
	require.NoError(t, err)

	return &stack{api: api, uploads: uploads, client: c}
}

func TestUpload_WebSocket(t *testing.T) {
	s := newStack(t, 400)
	ctx := context.Background()

	n, err := s.client.CreateNote(ctx, CreateRequest{Title: "memo"})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("a"), 1000)
	var events []string
	res, err := s.client.Upload(ctx, n.ID, "memo.webm", bytes.NewReader(payload), int64(len(payload)), func(ev UploadEvent) {
		if ev.Progress != nil {
			events = append(events, fmt.Sprintf("%s %.0f", ev.Status, *ev.Progress))
			return
		}
		events = append(events, ev.Status)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ready", "progress 40", "progress 80", "progress 100", "completed"}, events)
	assert.Equal(t, int64(1000), res.Sent)
	assert.NotEmpty(t, res.FileKey)
	assert.Equal(t, "Audio uploaded and processing started", res.Message)

	got, err := s.client.GetNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending_transcription", got.Status)
	assert.Equal(t, "memo.webm", got.AudioFilename)

	st, err := s.client.UploadStatus(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", st.State)
	assert.Equal(t, 100.0, st.Progress)
}

func TestUpload_ServerError(t *testing.T) {
	s := newStack(t, 400)

	_, err := s.client.Upload(context.Background(), "00000000-0000-0000-0000-000000000000", "a.webm", strings.NewReader("abc"), 3, nil)
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "not_found", upErr.Code)
	assert.Equal(t, "Note not found", upErr.Message)
}

func TestUpload_ShortSource(t *testing.T) {
	s := newStack(t, 400)
	ctx := context.Background()

	n, err := s.client.CreateNote(ctx, CreateRequest{Title: "memo"})
	require.NoError(t, err)

	_, err = s.client.Upload(ctx, n.ID, "a.webm", strings.NewReader("abc"), 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source ended after 3 of 10 bytes")
}

func TestUpload_GRPC(t *testing.T) {
	s := newStack(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gsrv, err := gs.NewGRPCServer("bufnet", logging.Nop(), s.uploads, 1<<20)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterUploadServiceServer(srv, gsrv)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer cc.Close()

	n, err := s.client.CreateNote(ctx, CreateRequest{Title: "memo"})
	require.NoError(t, err)

	var progress []float64
	res, err := s.client.uploadOverConn(ctx, cc, n.ID, "memo.ogg", strings.NewReader("0123456789"), 10, func(ev UploadEvent) {
		if ev.Progress != nil {
			progress = append(progress, *ev.Progress)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 80, 100}, progress)
	assert.Equal(t, int64(10), res.Sent)

	got, err := s.client.GetNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending_transcription", got.Status)
	assert.Equal(t, "memo.ogg", got.AudioFilename)
}
