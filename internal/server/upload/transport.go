package upload

// FrameKind tells control frames from payload frames.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}

type Frame struct {
	Kind FrameKind
	Data []byte
}

// Transport is one duplex upload connection. ReadFrame blocks until a frame
// arrives or the connection fails; it is only called from one goroutine.
// Close must unblock a pending ReadFrame.
type Transport interface {
	ReadFrame() (Frame, error)
	WriteMessage(Message) error
	Close() error
}

type frameResult struct {
	frame Frame
	err   error
}

// pumpFrames reads frames on its own goroutine so that callers can wait
// with a timeout. The goroutine exits after the first read error or once
// done is closed.
func pumpFrames(t Transport, done <-chan struct{}) <-chan frameResult {
	ch := make(chan frameResult)
	go func() {
		for {
			f, err := t.ReadFrame()
			select {
			case ch <- frameResult{frame: f, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
