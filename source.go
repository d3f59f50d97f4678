package mkv

import (
	"bufio"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// ByteSource is the seekable, random-access, byte-granular input the
// parser requires. Every read in this package goes through ReadAt, so a
// ByteSource needs no internal cursor of its own and may be shared
// safely between a parse call and, once returned via KeepStreamOpen,
// whatever the caller does with the tree afterwards.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// fileSource wraps an *os.File with a small read-ahead buffer that serves
// a read continuing where the previous one ended; a read at any other
// offset goes straight to the file.
type fileSource struct {
	f    *os.File
	size int64
	buf  *bufio.Reader
	pos  int64
}

// readAheadSize is deliberately small: random seeks invalidate most of a
// larger buffer's lookahead before it is ever used.
const readAheadSize = 4096

// OpenFile opens name for reading with shared-read access and a small
// read-ahead buffer, as the spec's external-interface contract requires.
func OpenFile(name string) (ByteSource, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: info.Size()}, nil
}

func (fs *fileSource) Size() int64 { return fs.size }
func (fs *fileSource) Close() error { return fs.f.Close() }

func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) {
	// bufio.Reader only helps for a sequential read starting where it
	// left off; random seeks fall back to a direct pread via os.File.
	if fs.buf != nil && off == fs.pos {
		n, err := io.ReadFull(fs.buf, p)
		fs.pos += int64(n)
		return n, err
	}
	n, err := fs.f.ReadAt(p, off)
	fs.pos = off + int64(n)
	fs.buf = bufio.NewReaderSize(io.NewSectionReader(fs.f, fs.pos, fs.size-fs.pos), readAheadSize)
	return n, err
}

// mmapSource memory-maps the whole file read-only, the same strategy
// saferwall/pe uses for its PE image data: no read syscalls at all once
// mapped.
type mmapSource struct {
	f    *os.File
	data mmap.MMap
}

// OpenMmap opens name and memory-maps its contents read-only.
func OpenMmap(name string) (ByteSource, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapSource{f: f, data: data}, nil
}

func (ms *mmapSource) Size() int64 { return int64(len(ms.data)) }

func (ms *mmapSource) Close() error {
	err := ms.data.Unmap()
	if cerr := ms.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (ms *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(ms.data)) {
		return 0, io.EOF
	}
	n := copy(p, ms.data[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

// memSource is a ByteSource over an in-memory buffer, used by tests and
// by callers that have already loaded the file into memory.
type memSource struct {
	data []byte
}

// NewMemSource wraps data as a ByteSource. Close is a no-op.
func NewMemSource(data []byte) ByteSource { return &memSource{data: data} }

func (m *memSource) Size() int64  { return int64(len(m.data)) }
func (m *memSource) Close() error { return nil }

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}
