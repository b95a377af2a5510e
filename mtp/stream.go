package mtp

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/paulbellamy/ratecounter"
	"go.uber.org/atomic"
)

// ObjectInputStream sources the data phase of an outbound transfer.
// Read returning fewer bytes than requested signals end of stream.
type ObjectInputStream interface {
	io.Reader
	Size() int64
}

// ObjectOutputStream sinks the data phase of an inbound transfer.
type ObjectOutputStream interface {
	io.Writer
}

// ProgressFunc is invoked after each successful chunk with the running
// byte count and the total when known (-1 otherwise). It runs on the
// I/O goroutine and must be cheap.
type ProgressFunc func(transferred, total int64)

// CancellationToken is a one-shot flag shared between the caller and
// any number of streams. Tripping it makes the next chunk of every
// associated stream fail with ErrCancelled.
type CancellationToken struct {
	tripped *atomic.Bool
}

func NewCancellationToken() *CancellationToken {
	return &CancellationToken{tripped: atomic.NewBool(false)}
}

func (t *CancellationToken) Trip() {
	t.tripped.Store(true)
}

func (t *CancellationToken) Tripped() bool {
	return t.tripped.Load()
}

// FileInputStream reads a local file and knows its size.
type FileInputStream struct {
	f    *os.File
	size int64
}

func NewFileInputStream(path string) (*FileInputStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileInputStream{f: f, size: fi.Size()}, nil
}

func (s *FileInputStream) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *FileInputStream) Size() int64 {
	return s.size
}

func (s *FileInputStream) Close() error {
	return s.f.Close()
}

// FileOutputStream truncates and writes a local file.
type FileOutputStream struct {
	f *os.File
}

func NewFileOutputStream(path string) (*FileOutputStream, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutputStream{f: f}, nil
}

func (s *FileOutputStream) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *FileOutputStream) Close() error {
	return s.f.Close()
}

// ByteInputStream serves an in-memory payload.
type ByteInputStream struct {
	r    *bytes.Reader
	size int64
}

func NewByteInputStream(data []byte) *ByteInputStream {
	return &ByteInputStream{r: bytes.NewReader(data), size: int64(len(data))}
}

func (s *ByteInputStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *ByteInputStream) Size() int64 {
	return s.size
}

// ByteOutputStream collects an inbound payload in memory. With a
// capacity set, writes return short once the buffer is full, which is
// what lets it head a joined stream.
type ByteOutputStream struct {
	buf bytes.Buffer
	cap int64
}

func NewByteOutputStream() *ByteOutputStream {
	return &ByteOutputStream{cap: -1}
}

func NewBoundedByteOutputStream(capacity int64) *ByteOutputStream {
	return &ByteOutputStream{cap: capacity}
}

func (s *ByteOutputStream) Write(p []byte) (int, error) {
	if s.cap >= 0 {
		room := s.cap - int64(s.buf.Len())
		if room <= 0 {
			return 0, nil
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	return s.buf.Write(p)
}

func (s *ByteOutputStream) Data() []byte {
	return s.buf.Bytes()
}

// JoinedInputStream concatenates two input streams. The transition
// happens at the first short read of the head stream, so one logical
// payload can span a pre-built header and a caller-supplied body.
type JoinedInputStream struct {
	head, tail    ObjectInputStream
	headExhausted bool
}

func JoinInputStreams(head, tail ObjectInputStream) *JoinedInputStream {
	return &JoinedInputStream{head: head, tail: tail}
}

func (s *JoinedInputStream) Size() int64 {
	return s.head.Size() + s.tail.Size()
}

func (s *JoinedInputStream) Read(p []byte) (int, error) {
	if s.headExhausted {
		return s.tail.Read(p)
	}
	n, err := s.head.Read(p)
	if err == io.EOF || (err == nil && n < len(p)) {
		s.headExhausted = true
		m, err2 := s.tail.Read(p[n:])
		return n + m, err2
	}
	return n, err
}

// JoinedOutputStream splits writes across two sinks; the head takes
// bytes until it reports a short write.
type JoinedOutputStream struct {
	head, tail    ObjectOutputStream
	headExhausted bool
}

func JoinOutputStreams(head, tail ObjectOutputStream) *JoinedOutputStream {
	return &JoinedOutputStream{head: head, tail: tail}
}

func (s *JoinedOutputStream) Write(p []byte) (int, error) {
	if s.headExhausted {
		return s.tail.Write(p)
	}
	n, err := s.head.Write(p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		s.headExhausted = true
		m, err := s.tail.Write(p[n:])
		return n + m, err
	}
	return n, nil
}

// cancelReader fails the next Read after its token trips.
type cancelReader struct {
	r     io.Reader
	size  int64
	token *CancellationToken
}

// WithCancel associates a token with an input stream.
func WithCancel(r ObjectInputStream, token *CancellationToken) ObjectInputStream {
	return &cancelReader{r: r, size: r.Size(), token: token}
}

func (c *cancelReader) Read(p []byte) (int, error) {
	if c.token.Tripped() {
		return 0, ErrCancelled
	}
	return c.r.Read(p)
}

func (c *cancelReader) Size() int64 {
	return c.size
}

type cancelWriter struct {
	w     io.Writer
	token *CancellationToken
}

// WithWriteCancel associates a token with an output stream.
func WithWriteCancel(w ObjectOutputStream, token *CancellationToken) ObjectOutputStream {
	return &cancelWriter{w: w, token: token}
}

func (c *cancelWriter) Write(p []byte) (int, error) {
	if c.token.Tripped() {
		return 0, ErrCancelled
	}
	return c.w.Write(p)
}

// progressReader reports after every chunk read from the wrapped
// stream.
type progressReader struct {
	r           io.Reader
	size        int64
	transferred int64
	report      ProgressFunc
}

func WithProgress(r ObjectInputStream, report ProgressFunc) ObjectInputStream {
	return &progressReader{r: r, size: r.Size(), report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.transferred += int64(n)
		p.report(p.transferred, p.size)
	}
	return n, err
}

func (p *progressReader) Size() int64 {
	return p.size
}

type progressWriter struct {
	w           io.Writer
	total       int64
	transferred int64
	report      ProgressFunc
}

// WithWriteProgress reports after every chunk written. total is the
// expected byte count, or -1 when unknown.
func WithWriteProgress(w ObjectOutputStream, total int64, report ProgressFunc) ObjectOutputStream {
	return &progressWriter{w: w, total: total, report: report}
}

func (p *progressWriter) Write(buf []byte) (int, error) {
	n, err := p.w.Write(buf)
	if n > 0 {
		p.transferred += int64(n)
		p.report(p.transferred, p.total)
	}
	return n, err
}

// RateReporter folds a transfer-rate gauge into a progress callback,
// averaging over a one second window.
type RateReporter struct {
	counter *ratecounter.RateCounter
	last    int64
}

func NewRateReporter() *RateReporter {
	return &RateReporter{counter: ratecounter.NewRateCounter(time.Second)}
}

// Progress wraps next (which may be nil) into a callback that also
// feeds the rate counter.
func (r *RateReporter) Progress(next ProgressFunc) ProgressFunc {
	return func(transferred, total int64) {
		delta := transferred - r.last
		if delta > 0 {
			r.counter.Incr(delta)
			r.last = transferred
		}
		if next != nil {
			next(transferred, total)
		}
	}
}

// Rate is the current transfer rate in bytes per second.
func (r *RateReporter) Rate() int64 {
	return r.counter.Rate()
}
