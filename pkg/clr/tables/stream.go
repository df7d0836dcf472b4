package tables

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// MetadataReader decodes little-endian values from an in-memory stream.
type MetadataReader struct {
	data   []byte
	pos    int
	layout *Layout
}

// NewMetadataReader returns a reader over data. The layout may be nil
// until the stream header has been read.
func NewMetadataReader(data []byte, layout *Layout) *MetadataReader {
	return &MetadataReader{data: data, layout: layout}
}

// Offset returns the current position.
func (r *MetadataReader) Offset() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *MetadataReader) Remaining() int { return len(r.data) - r.pos }

// Layout returns the layout used to size columns.
func (r *MetadataReader) Layout() *Layout { return r.layout }

func (r *MetadataReader) next(n int, what string) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, truncated(what, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 reads one byte.
func (r *MetadataReader) ReadUint8() (uint8, error) {
	b, err := r.next(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (r *MetadataReader) ReadUint16() (uint16, error) {
	b, err := r.next(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *MetadataReader) ReadUint32() (uint32, error) {
	b, err := r.next(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *MetadataReader) ReadUint64() (uint64, error) {
	b, err := r.next(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *MetadataReader) readIndex(size int) (uint32, error) {
	if size == 4 {
		return r.ReadUint32()
	}
	v, err := r.ReadUint16()
	return uint32(v), err
}

// readCell decodes one column into the cell pointer returned by a row's
// cells method.
func (r *MetadataReader) readCell(col Column, cell any) error {
	size := r.layout.ColumnSize(col)
	switch p := cell.(type) {
	case *uint16:
		v, err := r.ReadUint16()
		*p = v
		return err
	case *uint32:
		v, err := r.ReadUint32()
		*p = v
		return err
	case *StringIndex:
		v, err := r.readIndex(size)
		*p = StringIndex(v)
		return err
	case *GuidIndex:
		v, err := r.readIndex(size)
		*p = GuidIndex(v)
		return err
	case *BlobIndex:
		v, err := r.readIndex(size)
		*p = BlobIndex(v)
		return err
	case *Token:
		v, err := r.readIndex(size)
		if err != nil {
			return err
		}
		if col.Kind == KindCoded {
			tok, err := col.Scheme.Decode(v)
			if err != nil {
				return err
			}
			*p = tok
			return nil
		}
		if v > rowMask {
			return rowOutOfRange(col.Table, v)
		}
		*p = MakeToken(col.Table, v)
		return nil
	}
	panic(errors.AssertionFailedf("column %s: unsupported cell type %T", col.Name, cell))
}

func rowOutOfRange(t Index, row uint32) error {
	return badImagef("row %d out of range for table %s", row, t)
}

// MetadataWriter appends little-endian values to a growing buffer.
type MetadataWriter struct {
	buf    []byte
	layout *Layout
}

// NewMetadataWriter returns a writer that sizes columns with layout.
func NewMetadataWriter(layout *Layout) *MetadataWriter {
	return &MetadataWriter{layout: layout}
}

// Bytes returns the written data.
func (w *MetadataWriter) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *MetadataWriter) Len() int { return len(w.buf) }

// Layout returns the layout used to size columns.
func (w *MetadataWriter) Layout() *Layout { return w.layout }

// WriteUint8 appends one byte.
func (w *MetadataWriter) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

// WriteUint16 appends a little-endian uint16.
func (w *MetadataWriter) WriteUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// WriteUint32 appends a little-endian uint32.
func (w *MetadataWriter) WriteUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// WriteUint64 appends a little-endian uint64.
func (w *MetadataWriter) WriteUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *MetadataWriter) writeIndex(size int, v uint32) error {
	if size == 4 {
		w.WriteUint32(v)
		return nil
	}
	if v > bigThreshold {
		return errors.AssertionFailedf("index value 0x%X does not fit a 2-byte column", v)
	}
	w.WriteUint16(uint16(v))
	return nil
}

// writeCell encodes one column from the cell pointer returned by a row's
// cells method.
func (w *MetadataWriter) writeCell(col Column, cell any) error {
	size := w.layout.ColumnSize(col)
	switch p := cell.(type) {
	case *uint16:
		w.WriteUint16(*p)
		return nil
	case *uint32:
		w.WriteUint32(*p)
		return nil
	case *StringIndex:
		return w.writeIndex(size, uint32(*p))
	case *GuidIndex:
		return w.writeIndex(size, uint32(*p))
	case *BlobIndex:
		return w.writeIndex(size, uint32(*p))
	case *Token:
		tok := *p
		if col.Kind == KindCoded {
			v, err := col.Scheme.Encode(tok)
			if err != nil {
				return errors.Wrapf(err, "column %s", col.Name)
			}
			return w.writeIndex(size, v)
		}
		if tok.IsPseudo() {
			return errors.AssertionFailedf("column %s: unresolved pseudo-token %s", col.Name, tok)
		}
		if !tok.IsNil() && tok.Table() != col.Table {
			return errors.AssertionFailedf("column %s: token %s does not reference table %s",
				col.Name, tok, col.Table)
		}
		return w.writeIndex(size, tok.Row())
	}
	panic(errors.AssertionFailedf("column %s: unsupported cell type %T", col.Name, cell))
}
