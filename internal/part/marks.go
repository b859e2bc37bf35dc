package part

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mergetree/internal/field"
)

// Mark locates row k*index_granularity within a column's compressed data
// stream: the byte offset of the compressed block that contains the row,
// and the row's offset within that block once decompressed.
//
// Marks are fixed-width binary records. No library in this pack (or the
// retrieved pack in general) offers a columnar mark-file codec — the
// closest idiom is the pack's own binary wire-format code
// (erigontech/erigon's turbo/snapshotsync, which hand-rolls
// encoding/binary over fixed-size records for exactly this reason), so
// encoding/binary is used directly rather than inventing a dependency.
type Mark struct {
	CompressedOffset   uint64
	UncompressedOffset uint32
}

const markRecordSize = 8 + 4

// WriteMark writes one mark record to w, the same binary layout
// WriteMarksTmp uses for a whole file. Exposed so callers that produce
// marks one compressed block at a time (the default alter conversion
// stream, which only ever sees a single *os.File at a time) don't need
// to buffer a []Mark just to reuse the encoding.
func WriteMark(w io.Writer, m Mark) error {
	buf := make([]byte, markRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.CompressedOffset)
	binary.LittleEndian.PutUint32(buf[8:12], m.UncompressedOffset)
	_, err := w.Write(buf)
	return err
}

// WriteMarksTmp serializes marks to path without renaming it into place.
func WriteMarksTmp(path string, marks []Mark) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("part: create %s: %w", path, err)
	}
	defer f.Close()

	for _, m := range marks {
		if err := WriteMark(f, m); err != nil {
			return fmt.Errorf("part: write %s: %w", path, err)
		}
	}
	return f.Sync()
}

// LoadMarks reads a .mrk file.
func LoadMarks(path string) ([]Mark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("part: open %s: %w", path, err)
	}
	defer f.Close()

	var marks []Mark
	buf := make([]byte, markRecordSize)
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("part: read %s: %w", path, err)
		}
		marks = append(marks, Mark{
			CompressedOffset:   binary.LittleEndian.Uint64(buf[0:8]),
			UncompressedOffset: binary.LittleEndian.Uint32(buf[8:12]),
		})
	}
	return marks, nil
}

// ReadBlocksFromFiles reads a column's real .mrk/.bin pair and returns the
// decompressed, decoded rows of each block in mark order. A missing .mrk
// file (never written, e.g. a brand-new column) yields (nil, nil) rather
// than an error.
func ReadBlocksFromFiles(binPath, mrkPath string) ([][]field.Field, error) {
	marks, err := LoadMarks(mrkPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(marks) == 0 {
		return nil, nil
	}
	raw, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("part: read %s: %w", binPath, err)
	}

	blocks := make([][]field.Field, 0, len(marks))
	for i, m := range marks {
		end := uint64(len(raw))
		if i+1 < len(marks) {
			end = marks[i+1].CompressedOffset
		}
		if m.CompressedOffset > uint64(len(raw)) || end > uint64(len(raw)) || end < m.CompressedOffset {
			return nil, fmt.Errorf("part: %s: mark %d has an out-of-range offset", mrkPath, i)
		}
		decompressed, err := DecompressBlock(raw[m.CompressedOffset:end], 0)
		if err != nil {
			return nil, fmt.Errorf("part: %s: decompress block %d: %w", binPath, i, err)
		}
		rows, err := DecodeBlock(decompressed)
		if err != nil {
			return nil, fmt.Errorf("part: %s: decode block %d: %w", binPath, i, err)
		}
		blocks = append(blocks, rows)
	}
	return blocks, nil
}

// ReadColumnBlocks is ReadBlocksFromFiles for a column's conventional
// .bin/.mrk pair under dir.
func ReadColumnBlocks(dir string, c Column) ([][]field.Field, error) {
	esc := EscapeFileName(c.Name)
	return ReadBlocksFromFiles(filepath.Join(dir, esc+".bin"), filepath.Join(dir, esc+".mrk"))
}

// RewriteColumnFile reads a column's blocks from a source .bin/.mrk pair
// and re-writes them, freshly compressed with fresh marks, to an explicit
// destination .bin/.mrk pair. Unlike ConversionStream (which hands back a
// single *os.File per call with no shared state across the .bin and .mrk
// invocations), this takes both destination paths at once, so it is the
// helper mergeOnce uses to produce a merge result's real column data
// instead of placeholder empty files.
func RewriteColumnFile(srcBinPath, srcMrkPath, dstBinPath, dstMrkPath string) error {
	blocks, err := ReadBlocksFromFiles(srcBinPath, srcMrkPath)
	if err != nil {
		return err
	}

	binFile, err := os.Create(dstBinPath)
	if err != nil {
		return fmt.Errorf("part: create %s: %w", dstBinPath, err)
	}
	defer binFile.Close()

	marks := make([]Mark, 0, len(blocks))
	var offset uint64
	for _, rows := range blocks {
		raw, err := EncodeBlock(rows)
		if err != nil {
			return err
		}
		compressed := CompressBlock(raw)
		marks = append(marks, Mark{CompressedOffset: offset})
		if _, err := binFile.Write(compressed); err != nil {
			return fmt.Errorf("part: write %s: %w", dstBinPath, err)
		}
		offset += uint64(len(compressed))
	}
	if err := binFile.Sync(); err != nil {
		return fmt.Errorf("part: sync %s: %w", dstBinPath, err)
	}
	return WriteMarksTmp(dstMrkPath, marks)
}

// PrimaryIndex is the sparse index: the primary-key tuple evaluated at
// each mark, stored in primary.idx. Row count implied by len(Rows) is one
// per granule.
type PrimaryIndex struct {
	Rows [][]field.Field
}

const primaryIndexFileName = "primary.idx"

// WritePrimaryIndexTmp serializes idx using a minimal length-prefixed
// encoding: one row per mark, each row an index_granularity-spaced
// snapshot of the primary-key tuple. Only numeric and string Fields are
// supported, which covers every primary-key type used in this engine.
func WritePrimaryIndexTmp(path string, idx PrimaryIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("part: create %s: %w", path, err)
	}
	defer f.Close()

	w := newFieldWriter(f)
	if err := w.writeUvarint(uint64(len(idx.Rows))); err != nil {
		return err
	}
	for _, row := range idx.Rows {
		if err := w.writeUvarint(uint64(len(row))); err != nil {
			return err
		}
		for _, v := range row {
			if err := w.writeField(v); err != nil {
				return fmt.Errorf("part: write %s: %w", path, err)
			}
		}
	}
	if err := w.flush(); err != nil {
		return fmt.Errorf("part: write %s: %w", path, err)
	}
	return f.Sync()
}

// LoadPrimaryIndex reads primary.idx.
func LoadPrimaryIndex(path string) (PrimaryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PrimaryIndex{}, nil
		}
		return PrimaryIndex{}, fmt.Errorf("part: open %s: %w", path, err)
	}
	defer f.Close()

	r := newFieldReader(f)
	n, err := r.readUvarint()
	if err != nil {
		if err == io.EOF {
			return PrimaryIndex{}, nil
		}
		return PrimaryIndex{}, fmt.Errorf("part: read %s: %w", path, err)
	}
	rows := make([][]field.Field, 0, n)
	for i := uint64(0); i < n; i++ {
		width, err := r.readUvarint()
		if err != nil {
			return PrimaryIndex{}, fmt.Errorf("part: read %s: %w", path, err)
		}
		row := make([]field.Field, width)
		for j := range row {
			v, err := r.readField()
			if err != nil {
				return PrimaryIndex{}, fmt.Errorf("part: read %s: %w", path, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return PrimaryIndex{Rows: rows}, nil
}
