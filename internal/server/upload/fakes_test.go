package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport replays queued frames; closing frames simulates a
// disconnect and an empty open queue simulates a silent client.
type fakeTransport struct {
	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []Message
	onWrite func(Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan Frame, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) text(t *testing.T, v any) *fakeTransport {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	f.frames <- Frame{Kind: TextFrame, Data: b}
	return f
}

func (f *fakeTransport) rawText(s string) *fakeTransport {
	f.frames <- Frame{Kind: TextFrame, Data: []byte(s)}
	return f
}

func (f *fakeTransport) binary(data []byte) *fakeTransport {
	f.frames <- Frame{Kind: BinaryFrame, Data: data}
	return f
}

func (f *fakeTransport) disconnect() {
	close(f.frames)
}

func (f *fakeTransport) ReadFrame() (Frame, error) {
	select {
	case fr, ok := <-f.frames:
		if !ok {
			return Frame{}, io.EOF
		}
		return fr, nil
	case <-f.closed:
		return Frame{}, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(m Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, m)
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeNotes is an in-memory Lifecycle that honours the status table and
// the revision check.
type fakeNotes struct {
	mu             sync.Mutex
	notes          map[string]*models.Note
	getErr         error
	completeErr    error
	beforeComplete func(n *models.Note)
	markedError    int
	completeCalls  int
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: map[string]*models.Note{}}
}

func (f *fakeNotes) add(status models.Status) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.notes[id] = &models.Note{ID: id, Title: "t", Status: status, Revision: 1, AudioFilename: models.PlaceholderAudioFilename}
	return id
}

func (f *fakeNotes) note(id string) models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.notes[id]
}

func (f *fakeNotes) Get(ctx context.Context, id string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *n
	return &c, nil
}

func (f *fakeNotes) move(id string, next models.Status) (*models.Note, error) {
	n, ok := f.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	st, err := n.Status.TransitionTo(next)
	if err != nil {
		return nil, err
	}
	n.Status = st
	n.Revision++
	c := *n
	return &c, nil
}

func (f *fakeNotes) MarkUploading(ctx context.Context, id string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.move(id, models.StatusUploading)
}

func (f *fakeNotes) CompleteUpload(ctx context.Context, id string, revision int64, filename, key, url string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	n, ok := f.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if f.beforeComplete != nil {
		f.beforeComplete(n)
	}
	if n.Revision != revision {
		return nil, common.ErrVersionConflict
	}
	n.AudioFilename = filename
	n.AudioKey = &key
	n.AudioURL = &url
	return f.move(id, models.StatusPendingTranscription)
}

func (f *fakeNotes) FailUpload(ctx context.Context, id string, revision int64, reason string) (*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if n.Revision != revision {
		return nil, common.ErrVersionConflict
	}
	f.markedError++
	return f.move(id, models.StatusError)
}

type brokenStore struct {
	*objectstore.MemoryStore
	putErr     error
	presignErr error
}

func (b *brokenStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	return b.MemoryStore.Put(ctx, data, filename)
}

func (b *brokenStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return b.MemoryStore.Presign(ctx, key, ttl)
}

type harness struct {
	h       *Handler
	notes   *fakeNotes
	store   *brokenStore
	tracker *progress.MemoryTracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	notes := newFakeNotes()
	store := &brokenStore{MemoryStore: objectstore.NewMemoryStore("")}
	tracker := progress.NewMemoryTracker(time.Minute)
	h := NewHandler(notes, store, tracker, logging.Nop(), Options{
		MetadataTimeout: time.Second,
		ChunkTimeout:    time.Second,
		PresignTTL:      time.Hour,
		MaxUploadBytes:  1 << 20,
	})
	return &harness{h: h, notes: notes, store: store, tracker: tracker}
}

func statuses(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Status)
	}
	return out
}
