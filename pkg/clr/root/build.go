package root

import (
	"encoding/binary"
)

// DefaultVersion is the runtime version string written by Build when
// none is given.
const DefaultVersion = "v4.0.30319"

// NewStream returns a stream to be written by Build.
func NewStream(name string, data []byte) Stream {
	return Stream{Name: name, Size: uint32(len(data)), data: data}
}

// Build lays out a metadata root with the given streams. Stream data is
// placed after the directory in the order given, each padded to 4 bytes.
func Build(version string, streams []Stream) []byte {
	if version == "" {
		version = DefaultVersion
	}
	versionLen := (len(version) + 1 + 3) &^ 3

	headerSize := 16 + versionLen + 4
	for _, s := range streams {
		headerSize += 8 + nameSize(s.Name)
	}

	le := binary.LittleEndian
	buf := make([]byte, 0, headerSize)
	buf = le.AppendUint32(buf, Signature)
	buf = le.AppendUint16(buf, 1)
	buf = le.AppendUint16(buf, 1)
	buf = le.AppendUint32(buf, 0)
	buf = le.AppendUint32(buf, uint32(versionLen))
	buf = append(buf, version...)
	buf = append(buf, make([]byte, versionLen-len(version))...)
	buf = le.AppendUint16(buf, 0)
	buf = le.AppendUint16(buf, uint16(len(streams)))

	offset := uint32(headerSize)
	for _, s := range streams {
		buf = le.AppendUint32(buf, offset)
		buf = le.AppendUint32(buf, uint32(len(s.data)))
		buf = append(buf, s.Name...)
		buf = append(buf, make([]byte, nameSize(s.Name)-len(s.Name))...)
		offset += uint32(padded(len(s.data)))
	}
	for _, s := range streams {
		buf = append(buf, s.data...)
		buf = append(buf, make([]byte, padded(len(s.data))-len(s.data))...)
	}
	return buf
}

func nameSize(name string) int { return padded(len(name) + 1) }

func padded(n int) int { return (n + 3) &^ 3 }
