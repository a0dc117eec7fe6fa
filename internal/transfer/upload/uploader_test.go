package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/remote"
)

const testPageSize = 16

// -------- test fakes --------

type sentPage struct {
	fileID     uint64
	partIndex  int
	totalParts int
	data       []byte
}

type commit struct {
	fileID   uint64
	parts    int
	filename string
	mime     string
}

type fakeBackend struct {
	maxParts int

	sent    []sentPage
	commits []commit

	channelErr error
	sendErr    error
	commitErr  error
	failSendAt int // fail the n-th SendFilePart (1-based), 0 = never
}

func (f *fakeBackend) GetChannel(ctx context.Context, ref remote.ChannelRef) (remote.Channel, error) {
	if f.channelErr != nil {
		return remote.Channel{}, f.channelErr
	}
	return remote.Channel{ID: string(ref), AccessToken: "tok"}, nil
}

func (f *fakeBackend) GetMessage(ctx context.Context, ch remote.Channel, msg remote.MessageRef) (remote.Message, error) {
	return remote.Message{}, errors.New("not a download backend")
}

func (f *fakeBackend) GetFilePage(ctx context.Context, doc remote.Document, offset uint64, limit int) ([]byte, error) {
	return nil, errors.New("not a download backend")
}

func (f *fakeBackend) SendFilePart(ctx context.Context, fileID uint64, partIndex, totalParts int, data []byte) error {
	if f.sendErr != nil && (f.failSendAt == 0 || len(f.sent)+1 == f.failSendAt) {
		return f.sendErr
	}
	f.sent = append(f.sent, sentPage{
		fileID:     fileID,
		partIndex:  partIndex,
		totalParts: totalParts,
		data:       bytes.Clone(data),
	})
	return nil
}

func (f *fakeBackend) MoveFileToChannel(ctx context.Context, ch remote.Channel, req remote.CommitRequest) (remote.Committed, error) {
	if f.commitErr != nil {
		return remote.Committed{}, f.commitErr
	}
	f.commits = append(f.commits, commit{
		fileID:   req.FileID,
		parts:    req.Parts,
		filename: req.Filename,
		mime:     req.MIME,
	})
	return remote.Committed{
		MessageID:  fmt.Sprintf("msg-%d", len(f.commits)),
		DocumentID: fmt.Sprintf("doc-%d", len(f.commits)),
	}, nil
}

func (f *fakeBackend) MaxUploadParts(ctx context.Context) (int, error) {
	return f.maxParts, nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13 + 5)
	}
	return b
}

func newUploader(backend *fakeBackend, minBuffer uint64, events Events) *Uploader {
	return New(backend, "chan", "report.bin", Params{
		PageSize:      testPageSize,
		MinBufferSize: minBuffer,
	}, nil, events)
}

// -------- tests --------

func TestUploader_SmallObjectStaysBuffered(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}
	content := pattern(testPageSize - 1)

	var uploaded []*Portion
	var completed bool
	u := newUploader(backend, testPageSize, Events{
		PortionUploaded: func(p *Portion) { uploaded = append(uploaded, p) },
		CompleteUpload:  func(parts []*Portion, channelID string) { completed = true },
	})

	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 1)
	p := parts[0]
	assert.True(t, p.Inline())
	assert.Equal(t, content, p.BufferedContent)
	assert.Equal(t, uint64(len(content)), p.Size)
	assert.Equal(t, -1, p.PageIndex)
	assert.Empty(t, p.MessageID)

	assert.Empty(t, backend.sent, "no page pushes for buffered object")
	assert.Empty(t, backend.commits)
	assert.Len(t, uploaded, 1)
	assert.True(t, completed)
}

func TestUploader_SplitsOnPageCap(t *testing.T) {
	backend := &fakeBackend{maxParts: 2}
	content := pattern(3*testPageSize + 10)

	u := newUploader(backend, 0, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 2)

	first, second := parts[0], parts[1]
	assert.Equal(t, 2, first.Pages())
	assert.Equal(t, uint64(2*testPageSize), first.Size)
	assert.Equal(t, 2, second.Pages())
	assert.Equal(t, uint64(testPageSize+10), second.Size)

	require.Len(t, backend.sent, 4)
	// portion 0: plain page, then the cap-filling page with final totals
	assert.Equal(t, remote.UnknownTotalParts, backend.sent[0].totalParts)
	assert.Equal(t, 2, backend.sent[1].totalParts)
	// portion 1: plain page, then the trailing partial page with totals
	assert.Equal(t, remote.UnknownTotalParts, backend.sent[2].totalParts)
	assert.Equal(t, 2, backend.sent[3].totalParts)
	assert.Equal(t, 10, len(backend.sent[3].data))

	assert.Equal(t, first.FileID, backend.sent[0].fileID)
	assert.Equal(t, second.FileID, backend.sent[2].fileID)
	assert.NotEqual(t, first.FileID, second.FileID)

	require.Len(t, backend.commits, 2)
	assert.Equal(t, "report.bin.001", backend.commits[0].filename)
	assert.Equal(t, "report.bin.002", backend.commits[1].filename)
	assert.Equal(t, 2, backend.commits[0].parts)
	assert.Equal(t, 2, backend.commits[1].parts)

	// pushed bytes, reassembled, match the input
	var reassembled []byte
	for _, s := range backend.sent {
		reassembled = append(reassembled, s.data...)
	}
	assert.Equal(t, content, reassembled)
}

func TestUploader_SinglePortionKeepsPlainFilename(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}
	content := pattern(2*testPageSize + 3)

	u := newUploader(backend, 0, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 1)
	require.Len(t, backend.commits, 1)
	assert.Equal(t, "report.bin", backend.commits[0].filename)
	assert.Equal(t, 3, backend.commits[0].parts)
	assert.Equal(t, "msg-1", parts[0].MessageID)
}

func TestUploader_ThresholdCrossingFlushesBufferedPages(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}
	content := pattern(3 * testPageSize)

	// first two pages stay buffered, the third crosses the threshold
	u := newUploader(backend, 2*testPageSize+1, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 1)
	assert.False(t, parts[0].Inline())

	require.Len(t, backend.sent, 3)
	for i, s := range backend.sent {
		assert.Equal(t, i, s.partIndex)
		assert.Equal(t, remote.UnknownTotalParts, s.totalParts)
		assert.Equal(t, content[i*testPageSize:(i+1)*testPageSize], s.data)
	}

	require.Len(t, backend.commits, 1)
	assert.Equal(t, 3, backend.commits[0].parts)
}

func TestUploader_BufferDrainCrossesPageCap(t *testing.T) {
	backend := &fakeBackend{maxParts: 2}
	content := pattern(4 * testPageSize)

	// the accumulator outgrows the page cap before the threshold is
	// crossed, so the drain itself must roll over into a second portion
	u := newUploader(backend, 3*testPageSize+1, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 2)
	for i, p := range parts {
		assert.False(t, p.Inline(), "portion %d", i)
		assert.Equal(t, 2, p.Pages(), "portion %d", i)
		assert.Equal(t, uint64(2*testPageSize), p.Size, "portion %d", i)
		assert.NotEmpty(t, p.MessageID, "portion %d", i)
	}
	require.Len(t, backend.commits, 2)

	require.Len(t, backend.sent, 4)
	assert.Equal(t, 2, backend.sent[1].totalParts)
	assert.Equal(t, 2, backend.sent[3].totalParts)
	assert.Equal(t, parts[0].FileID, backend.sent[1].fileID)
	assert.Equal(t, parts[1].FileID, backend.sent[2].fileID)

	// every input byte reaches the backend exactly once, in order
	var reassembled []byte
	for _, s := range backend.sent {
		reassembled = append(reassembled, s.data...)
	}
	assert.Equal(t, content, reassembled)
}

func TestUploader_TrailingPartialPageAfterDrain(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}
	content := pattern(4*testPageSize + 10)

	u := newUploader(backend, 3*testPageSize+1, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, parts, 1)
	assert.Equal(t, uint64(len(content)), parts[0].Size)

	// the short trailing page carries the portion's real page count
	require.Len(t, backend.sent, 5)
	assert.Equal(t, 5, backend.sent[4].totalParts)
	assert.Equal(t, 10, len(backend.sent[4].data))
	require.Len(t, backend.commits, 1)
	assert.Equal(t, 5, backend.commits[0].parts)
}

func TestUploader_StreamEndsExactlyOnCap(t *testing.T) {
	backend := &fakeBackend{maxParts: 2}
	content := pattern(2 * testPageSize)

	u := newUploader(backend, 0, Events{})
	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	// the rollover opened a fresh portion that never saw a byte; it is
	// dropped instead of being finalized empty
	require.Len(t, parts, 1)
	assert.Equal(t, 2, parts[0].Pages())
	require.Len(t, backend.commits, 1)
	assert.Equal(t, 2, backend.sent[1].totalParts)
}

func TestUploader_EmptyStream(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}

	var completed bool
	u := newUploader(backend, testPageSize, Events{
		CompleteUpload: func(parts []*Portion, channelID string) { completed = true },
	})

	parts, err := u.Execute(context.Background(), bytes.NewReader(nil))
	require.NoError(t, err)

	require.Len(t, parts, 1)
	assert.True(t, parts[0].Inline())
	assert.Empty(t, parts[0].BufferedContent)
	assert.Zero(t, parts[0].Size)
	assert.Empty(t, backend.sent)
	assert.True(t, completed)
}

func TestUploader_EventOrdering(t *testing.T) {
	backend := &fakeBackend{maxParts: 2}
	content := pattern(3 * testPageSize)

	var order []string
	u := newUploader(backend, 0, Events{
		PortionUploaded: func(p *Portion) { order = append(order, fmt.Sprintf("portion-%d", p.Index)) },
		CompleteUpload:  func(parts []*Portion, channelID string) { order = append(order, "complete:"+channelID) },
	})

	_, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, []string{"portion-0", "portion-1", "complete:chan"}, order)
}

func TestUploader_StopMidUpload(t *testing.T) {
	backend := &fakeBackend{maxParts: 2}
	content := pattern(6 * testPageSize)

	var stopped bool
	var completed bool
	var u *Uploader
	u = newUploader(backend, 0, Events{
		PortionUploaded: func(p *Portion) { u.Stop() },
		CompleteUpload:  func(parts []*Portion, channelID string) { completed = true },
		Stopped:         func() { stopped = true },
	})

	parts, err := u.Execute(context.Background(), bytes.NewReader(content))
	require.NoError(t, err, "abort is a clean early return, not an error")

	assert.True(t, stopped)
	assert.False(t, completed)
	// the first portion was committed, then Stop cut the session short
	require.Len(t, backend.commits, 1)
	assert.Len(t, backend.sent, 2)
	assert.NotEmpty(t, parts)
}

func TestUploader_StopOutsideExecuteIsSilent(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}

	var stops int
	u := newUploader(backend, 0, Events{Stopped: func() { stops++ }})

	// before Execute there is no session to interrupt
	u.Stop()
	assert.Zero(t, stops)

	u2 := newUploader(backend, 0, Events{Stopped: func() { stops++ }})
	_, err := u2.Execute(context.Background(), bytes.NewReader(pattern(8)))
	require.NoError(t, err)

	// after a completed Execute, likewise
	u2.Stop()
	assert.Zero(t, stops)
}

func TestUploader_StopBlocksPendingFinalize(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}
	content := pattern(2 * testPageSize)

	// reader that stops the session after the last byte is handed out, so
	// the end-of-stream finalize sees the aborted flag
	var u *Uploader
	src := &stoppingReader{r: bytes.NewReader(content)}
	u = newUploader(backend, 0, Events{})
	src.stop = func() { u.aborted.Store(true) }

	_, err := u.Execute(context.Background(), src)
	require.NoError(t, err)

	assert.Empty(t, backend.commits, "finalize must check the abort flag before the backend call")
}

type stoppingReader struct {
	r    *bytes.Reader
	stop func()
}

func (s *stoppingReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if s.r.Len() == 0 {
		s.stop()
	}
	return n, err
}

func TestUploader_PushErrorPropagates(t *testing.T) {
	backend := &fakeBackend{maxParts: 10, sendErr: errors.New("boom"), failSendAt: 2}
	content := pattern(4 * testPageSize)

	u := newUploader(backend, 0, Events{})
	_, err := u.Execute(context.Background(), bytes.NewReader(content))

	require.ErrorIs(t, err, common.ErrBackendPush)
	assert.Empty(t, backend.commits)
}

func TestUploader_CommitErrorPropagates(t *testing.T) {
	backend := &fakeBackend{maxParts: 10, commitErr: errors.New("boom")}
	content := pattern(2 * testPageSize)

	u := newUploader(backend, 0, Events{})
	_, err := u.Execute(context.Background(), bytes.NewReader(content))

	require.ErrorIs(t, err, common.ErrBackendPush)
}

func TestUploader_ChannelErrorSurfacesFromPrepare(t *testing.T) {
	backend := &fakeBackend{maxParts: 10, channelErr: common.ErrChannelNotFound}

	u := newUploader(backend, 0, Events{})
	err := u.Prepare(context.Background())

	require.ErrorIs(t, err, common.ErrChannelNotFound)
}

func TestUploader_SingleUse(t *testing.T) {
	backend := &fakeBackend{maxParts: 10}

	u := newUploader(backend, 0, Events{})
	_, err := u.Execute(context.Background(), bytes.NewReader(pattern(8)))
	require.NoError(t, err)

	_, err = u.Execute(context.Background(), bytes.NewReader(pattern(8)))
	require.ErrorIs(t, err, common.ErrSessionConsumed)
}
