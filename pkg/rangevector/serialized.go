package rangevector

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// encodeRow writes the on-wire encoding of one Row: a length-prefixed,
// type-tagged cell list. It is the simplest serializer that materializes
// a row stream into a bounded byte payload.
func encodeRow(buf *bytes.Buffer, row Row) {
	binary.Write(buf, binary.LittleEndian, uint16(len(row.Cells)))
	for _, c := range row.Cells {
		buf.WriteByte(byte(c.Type))
		switch c.Type {
		case ColumnTimestamp:
			binary.Write(buf, binary.LittleEndian, c.L)
		case ColumnDouble:
			binary.Write(buf, binary.LittleEndian, c.D)
		case ColumnString:
			b := []byte(c.S)
			binary.Write(buf, binary.LittleEndian, uint32(len(b)))
			buf.Write(b)
		case ColumnHistogram:
			binary.Write(buf, binary.LittleEndian, c.H.SchemaID)
			binary.Write(buf, binary.LittleEndian, uint32(len(c.H.Values)))
			for _, v := range c.H.Values {
				binary.Write(buf, binary.LittleEndian, v)
			}
		}
	}
}

func decodeRow(r *bytes.Reader) (Row, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return Row{}, err
	}
	cells := make([]Cell, n)
	for i := range cells {
		tb, err := r.ReadByte()
		if err != nil {
			return Row{}, err
		}
		cells[i].Type = ColumnType(tb)
		switch cells[i].Type {
		case ColumnTimestamp:
			if err := binary.Read(r, binary.LittleEndian, &cells[i].L); err != nil {
				return Row{}, err
			}
		case ColumnDouble:
			if err := binary.Read(r, binary.LittleEndian, &cells[i].D); err != nil {
				return Row{}, err
			}
		case ColumnString:
			var slen uint32
			if err := binary.Read(r, binary.LittleEndian, &slen); err != nil {
				return Row{}, err
			}
			sb := make([]byte, slen)
			if _, err := r.Read(sb); err != nil {
				return Row{}, err
			}
			cells[i].S = string(sb)
		case ColumnHistogram:
			if err := binary.Read(r, binary.LittleEndian, &cells[i].H.SchemaID); err != nil {
				return Row{}, err
			}
			var vlen uint32
			if err := binary.Read(r, binary.LittleEndian, &vlen); err != nil {
				return Row{}, err
			}
			values := make([]float64, vlen)
			for j := range values {
				if err := binary.Read(r, binary.LittleEndian, &values[j]); err != nil {
					return Row{}, err
				}
			}
			cells[i].H.Values = values
		}
	}
	return Row{Cells: cells}, nil
}

// container is one materialized byte buffer, optionally zstd-compressed
// once it crosses CompressThreshold bytes.
type container struct {
	data       []byte
	compressed bool
	rawLen     int
	numRows    int
}

// ContainerBuilder accumulates rows into reusable byte containers and is
// shared across many range vectors of one query so they share a backing
// buffer. It is single-writer: callers must not invoke it concurrently.
type ContainerBuilder struct {
	mu                 sync.Mutex
	compressThreshold  int
	encoder            *zstd.Encoder
	decoder            *zstd.Decoder
	containers         []container
	cur                bytes.Buffer
	curRows            int
	totalBytes         int64
	totalRowsSerialized int
}

// NewContainerBuilder creates a builder. compressThreshold <= 0 disables
// compression entirely (every container stored raw).
func NewContainerBuilder(compressThreshold int) (*ContainerBuilder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "creating container encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating container decoder")
	}
	return &ContainerBuilder{compressThreshold: compressThreshold, encoder: enc, decoder: dec}, nil
}

// AppendRow encodes one row into the currently open container.
func (b *ContainerBuilder) AppendRow(row Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	encodeRow(&b.cur, row)
	b.curRows++
	b.totalRowsSerialized++
}

// CloseContainer flushes the currently open container, compressing it if
// it is large enough, and starts a fresh one. It must be called once per
// range vector materialized through this builder.
func (b *ContainerBuilder) CloseContainer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur.Len() == 0 && b.curRows == 0 {
		return
	}
	raw := append([]byte(nil), b.cur.Bytes()...)
	c := container{rawLen: len(raw), numRows: b.curRows}
	if b.compressThreshold > 0 && len(raw) >= b.compressThreshold {
		c.data = b.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
		c.compressed = true
	} else {
		c.data = raw
	}
	b.containers = append(b.containers, c)
	b.totalBytes += int64(len(c.data))
	b.cur.Reset()
	b.curRows = 0
}

// TotalBytes returns the sum of container byte sizes produced so far,
// used for result-size accounting (container bytes plus key sizes).
func (b *ContainerBuilder) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// NumRowsSerialized returns the count of rows appended across all range
// vectors built through this builder.
func (b *ContainerBuilder) NumRowsSerialized() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalRowsSerialized
}

func (b *ContainerBuilder) decodeContainer(c container) ([]Row, error) {
	raw := c.data
	if c.compressed {
		var err error
		raw, err = b.decoder.DecodeAll(c.data, make([]byte, 0, c.rawLen))
		if err != nil {
			return nil, errors.Wrap(err, "decompressing container")
		}
	}
	r := bytes.NewReader(raw)
	rows := make([]Row, 0, c.numRows)
	for i := 0; i < c.numRows; i++ {
		row, err := decodeRow(r)
		if err != nil {
			return nil, errors.Wrap(err, "decoding row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SerializedRangeVector is the materialized form of a source RangeVector:
// it tracks numRowsSerialized and, through its shared builder,
// per-container byte counts. It is restartable: Rows() decodes its own
// container slice fresh each call.
type SerializedRangeVector struct {
	key             RangeVectorKey
	schema          ResultSchema
	builder         *ContainerBuilder
	containers      []container
	numRowsSerialized int
	planName        string
	outputRange     *OutputRange
}

// NewSerializedRangeVector materializes src into builder, closing one
// container for it (none when src yields no rows). planName is recorded for diagnostics (printTree /
// metrics labeling).
func NewSerializedRangeVector(src RangeVector, builder *ContainerBuilder, schema ResultSchema, planName string) (*SerializedRangeVector, error) {
	cur := src.Rows()
	startIdx := len(builder.containers)
	n := 0
	for cur.Next() {
		builder.AppendRow(cur.Row())
		n++
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "reading source range vector")
	}
	builder.CloseContainer()

	builder.mu.Lock()
	owned := append([]container(nil), builder.containers[startIdx:]...)
	builder.mu.Unlock()

	return &SerializedRangeVector{
		key:               src.Key(),
		schema:            schema,
		builder:           builder,
		containers:        owned,
		numRowsSerialized: n,
		planName:          planName,
		outputRange:       src.OutputRange(),
	}, nil
}

func (s *SerializedRangeVector) Key() RangeVectorKey { return s.key }

func (s *SerializedRangeVector) OutputRange() *OutputRange { return s.outputRange }

func (s *SerializedRangeVector) NumRowsSerialized() int { return s.numRowsSerialized }

func (s *SerializedRangeVector) PlanName() string { return s.planName }

// NumContainerBytes sums this vector's own containers, excluding the rest
// of the shared builder's output.
func (s *SerializedRangeVector) NumContainerBytes() int64 {
	var total int64
	for _, c := range s.containers {
		total += int64(len(c.data))
	}
	return total
}

func (s *SerializedRangeVector) Rows() RowCursor {
	var rows []Row
	for _, c := range s.containers {
		decoded, err := s.builder.decodeContainer(c)
		if err != nil {
			return &errCursor{err: err}
		}
		rows = append(rows, decoded...)
	}
	return &sliceCursor{rows: rows}
}

type errCursor struct{ err error }

func (c *errCursor) Next() bool  { return false }
func (c *errCursor) Row() Row    { return Row{} }
func (c *errCursor) Err() error  { return c.err }
