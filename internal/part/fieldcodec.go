package part

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"mergetree/internal/field"
)

// fieldTag identifies the on-disk encoding of a primary.idx Field. Kept
// separate from field.Kind so the on-disk format doesn't silently shift if
// the in-memory Kind enumeration is reordered.
type fieldTag byte

const (
	tagInt64 fieldTag = iota
	tagUint64
	tagFloat64
	tagString
)

type fieldWriter struct {
	w   *bufio.Writer
	buf [binary.MaxVarintLen64]byte
}

func newFieldWriter(w io.Writer) *fieldWriter {
	return &fieldWriter{w: bufio.NewWriter(w)}
}

func (fw *fieldWriter) writeUvarint(v uint64) error {
	n := binary.PutUvarint(fw.buf[:], v)
	_, err := fw.w.Write(fw.buf[:n])
	return err
}

func (fw *fieldWriter) writeField(v field.Field) error {
	switch v.Kind() {
	case field.KindString:
		if err := fw.w.WriteByte(byte(tagString)); err != nil {
			return err
		}
		s := v.AsString()
		if err := fw.writeUvarint(uint64(len(s))); err != nil {
			return err
		}
		_, err := fw.w.WriteString(s)
		return err
	case field.KindFloat32, field.KindFloat64:
		if err := fw.w.WriteByte(byte(tagFloat64)); err != nil {
			return err
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.AsFloat64()))
		_, err := fw.w.Write(b[:])
		return err
	case field.KindUInt8, field.KindUInt16, field.KindUInt32, field.KindUInt64:
		if err := fw.w.WriteByte(byte(tagUint64)); err != nil {
			return err
		}
		u, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return err
		}
		return fw.writeUvarint(u)
	default:
		if err := fw.w.WriteByte(byte(tagInt64)); err != nil {
			return err
		}
		iv := int64(v.AsFloat64())
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			iv = n
		}
		return fw.writeUvarint(zigzag(iv))
	}
}

func (fw *fieldWriter) flush() error { return fw.w.Flush() }

func zigzag(v int64) uint64   { return uint64((v << 1) ^ (v >> 63)) }
func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

// EncodeBlock serializes a uncompressed column block (a run of row
// values) using the same length-prefixed field encoding primary.idx
// uses. The result is the payload CompressBlock compresses before it is
// written between two marks.
func EncodeBlock(rows []field.Field) ([]byte, error) {
	var buf bytes.Buffer
	w := newFieldWriter(&buf)
	if err := w.writeUvarint(uint64(len(rows))); err != nil {
		return nil, err
	}
	for _, v := range rows {
		if err := w.writeField(v); err != nil {
			return nil, err
		}
	}
	if err := w.flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBlock reverses EncodeBlock.
func DecodeBlock(raw []byte) ([]field.Field, error) {
	r := newFieldReader(bytes.NewReader(raw))
	n, err := r.readUvarint()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	rows := make([]field.Field, n)
	for i := range rows {
		v, err := r.readField()
		if err != nil {
			return nil, fmt.Errorf("part: decode block row %d: %w", i, err)
		}
		rows[i] = v
	}
	return rows, nil
}

type fieldReader struct {
	r *bufio.Reader
}

func newFieldReader(r io.Reader) *fieldReader {
	return &fieldReader{r: bufio.NewReader(r)}
}

func (fr *fieldReader) readUvarint() (uint64, error) {
	return binary.ReadUvarint(fr.r)
}

func (fr *fieldReader) readField() (field.Field, error) {
	tag, err := fr.r.ReadByte()
	if err != nil {
		return field.Field{}, err
	}
	switch fieldTag(tag) {
	case tagString:
		n, err := fr.readUvarint()
		if err != nil {
			return field.Field{}, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(fr.r, b); err != nil {
			return field.Field{}, err
		}
		return field.String(string(b)), nil
	case tagFloat64:
		var b [8]byte
		if _, err := io.ReadFull(fr.r, b[:]); err != nil {
			return field.Field{}, err
		}
		return field.Float64(math.Float64frombits(binary.LittleEndian.Uint64(b[:]))), nil
	case tagUint64:
		v, err := fr.readUvarint()
		if err != nil {
			return field.Field{}, err
		}
		return field.UInt64(v), nil
	case tagInt64:
		v, err := fr.readUvarint()
		if err != nil {
			return field.Field{}, err
		}
		return field.Int64(unzigzag(v)), nil
	default:
		return field.Field{}, fmt.Errorf("part: unknown field tag %d", tag)
	}
}
