// Package root implements the CLI metadata root: the "BSJB" header and
// the directory of named streams that follows it.
package root

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

// Signature is the magic number that starts a metadata root ("BSJB").
const Signature = 0x424A5342

// Well-known stream names.
const (
	TablesStream       = "#~"
	UncompressedTables = "#-"
	StringsStream      = "#Strings"
	BlobStream         = "#Blob"
	GUIDStream         = "#GUID"
	UserStringsStream  = "#US"
)

const (
	maxVersionLength = 255
	maxStreamName    = 32
)

// Header is the fixed part of the metadata root.
type Header struct {
	Signature    uint32
	MajorVersion uint16
	MinorVersion uint16
	Reserved     uint32
	Version      string
	Flags        uint16
}

// Stream is one entry of the stream directory together with its bytes.
type Stream struct {
	Name   string
	Offset uint32
	Size   uint32
	data   []byte
}

// Data returns the stream contents. The slice aliases the root data.
func (s *Stream) Data() []byte { return s.data }

// Root is a parsed metadata root.
type Root struct {
	Header
	streams []*Stream
	size    int
}

// Parse reads the metadata root at the start of data.
func Parse(data []byte) (*Root, error) {
	r := bytes.NewReader(data)
	root := &Root{size: len(data)}

	var fixed struct {
		Signature    uint32
		MajorVersion uint16
		MinorVersion uint16
		Reserved     uint32
		Length       uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, badRoot(err, "reading header")
	}
	if fixed.Signature != Signature {
		return nil, badRoot(errors.Newf("signature 0x%08X", fixed.Signature), "invalid metadata root")
	}
	if fixed.Length > maxVersionLength {
		return nil, badRoot(errors.Newf("version length %d", fixed.Length), "invalid metadata root")
	}
	version := make([]byte, fixed.Length)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, badRoot(err, "reading version string")
	}
	if i := bytes.IndexByte(version, 0); i >= 0 {
		version = version[:i]
	}
	root.Header = Header{
		Signature:    fixed.Signature,
		MajorVersion: fixed.MajorVersion,
		MinorVersion: fixed.MinorVersion,
		Reserved:     fixed.Reserved,
		Version:      string(version),
	}

	var counts struct {
		Flags   uint16
		Streams uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &counts); err != nil {
		return nil, badRoot(err, "reading stream count")
	}
	root.Flags = counts.Flags

	for i := 0; i < int(counts.Streams); i++ {
		s, err := readStreamHeader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "stream header %d", i)
		}
		end := uint64(s.Offset) + uint64(s.Size)
		if end > uint64(len(data)) {
			return nil, badRoot(errors.Newf("stream %s ends at %d, root is %d bytes", s.Name, end, len(data)),
				"invalid stream header")
		}
		s.data = data[s.Offset:end]
		root.streams = append(root.streams, s)
	}
	return root, nil
}

// readStreamHeader reads one directory entry: offset, size and a
// NUL-terminated name padded to a multiple of 4 bytes.
func readStreamHeader(r *bytes.Reader) (*Stream, error) {
	var s Stream
	if err := binary.Read(r, binary.LittleEndian, &s.Offset); err != nil {
		return nil, badRoot(err, "reading stream offset")
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Size); err != nil {
		return nil, badRoot(err, "reading stream size")
	}
	var name []byte
	for {
		var chunk [4]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, badRoot(err, "reading stream name")
		}
		if i := bytes.IndexByte(chunk[:], 0); i >= 0 {
			name = append(name, chunk[:i]...)
			break
		}
		name = append(name, chunk[:]...)
		if len(name) > maxStreamName {
			return nil, badRoot(errors.New("unterminated name"), "reading stream name")
		}
	}
	s.Name = string(name)
	return &s, nil
}

func badRoot(err error, format string, args ...interface{}) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return tables.BadImage(err, format, args...)
}

// Streams returns the streams in directory order.
func (r *Root) Streams() []*Stream { return r.streams }

// Size returns the number of bytes the root was parsed from.
func (r *Root) Size() int { return r.size }

// Stream returns the first stream with the given name.
func (r *Root) Stream(name string) (*Stream, bool) {
	for _, s := range r.streams {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Tables returns the "#~" stream, or the uncompressed "#-" variant.
func (r *Root) Tables() (*Stream, bool) {
	if s, ok := r.Stream(TablesStream); ok {
		return s, true
	}
	return r.Stream(UncompressedTables)
}
