package fwup

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"

	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Image is a firmware blob opened for one update run. It is never modified
// after opening.
type Image struct {
	Name string
	data []byte
	crc  uint16
}

// OpenImage reads the firmware file at path.
func OpenImage(path string) (*Image, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, &ImageReadError{Path: path, Err: err}
	}
	return NewImage(filepath.Base(path), data), nil
}

// NewImage wraps an in-memory firmware blob. data must not be modified
// afterwards.
func NewImage(name string, data []byte) *Image {
	return &Image{
		Name: name,
		data: data,
		crc:  crc16.Checksum(data, crcTable),
	}
}

// Size is the total image length in bytes.
func (i *Image) Size() int64 {
	return int64(len(i.data))
}

// CRC is the CRC-16/CCITT-FALSE of the whole image. The device does not
// check it; it is reported so operators can match the image against its
// build artifact.
func (i *Image) CRC() uint16 {
	return i.crc
}

// NumChunks returns how many chunks of chunkSize the image splits into.
func (i *Image) NumChunks(chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return (len(i.data) + chunkSize - 1) / chunkSize
}

// Chunks returns a fresh chunk source over the image.
func (i *Image) Chunks(chunkSize int) (*ChunkSource, error) {
	src, err := NewChunkSource(bytes.NewReader(i.data), chunkSize)
	if err != nil {
		return nil, err
	}
	src.name = i.Name
	src.total = i.NumChunks(chunkSize)
	return src, nil
}

func (i *Image) String() string {
	return fmt.Sprintf("%s: size %d (%#x) bytes CRC %#04x", i.Name, len(i.data), len(i.data), i.crc)
}

// Chunk is one slice of the image sent as a single wire command. Seq starts
// at 1 and is contiguous.
type Chunk struct {
	Seq  int
	Data []byte
	Size int
}

// ChunkSource lazily splits a byte stream into chunks. It is finite and
// cannot be restarted.
type ChunkSource struct {
	r     io.Reader
	size  int
	seq   int
	read  int64
	total int
	name  string
	done  bool
}

// NewChunkSource reads chunks of size bytes from r.
func NewChunkSource(r io.Reader, size int) (*ChunkSource, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	return &ChunkSource{r: r, size: size}, nil
}

// Next returns the next chunk. It returns io.EOF once the stream is
// exhausted and an *ImageReadError if the stream fails; both are terminal.
func (s *ChunkSource) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == io.EOF:
		s.done = true
		return Chunk{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		// short final chunk
		s.done = true
	case err != nil:
		s.done = true
		return Chunk{}, &ImageReadError{Path: s.name, Offset: s.read + int64(n), Err: err}
	}

	s.seq++
	s.read += int64(n)
	return Chunk{Seq: s.seq, Data: buf[:n], Size: n}, nil
}

// Total is the expected chunk count, or 0 if the stream length is unknown.
func (s *ChunkSource) Total() int {
	return s.total
}

// BytesRead is the number of bytes handed out so far.
func (s *ChunkSource) BytesRead() int64 {
	return s.read
}
