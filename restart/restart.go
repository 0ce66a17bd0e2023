// Package restart reads and writes restart records. A record file holds an
// ordered list of typed, keyed entries in little endian binary; a YAML
// control file lists the restart steps of a run.
package restart

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

const (
	magic   = "GOCSDRST"
	version = uint32(1)
)

type Kind uint8

const (
	KindInt Kind = iota + 1
	KindDouble
	KindVector
	KindBytes
)

type record struct {
	key  string
	kind Kind
	i    int64
	d    float64
	v    []float64
	b    []byte
}

// Writer collects records in write order.
type Writer struct {
	Step    int
	Time    float64
	records []record
	keys    map[string]int
}

func NewWriter(step int, time float64) *Writer {
	return &Writer{Step: step, Time: time, keys: make(map[string]int)}
}

func (w *Writer) add(r record) {
	if _, dup := w.keys[r.key]; dup {
		panic(utils.NewRuntimeError("restart.Writer", "key %q written twice", r.key))
	}
	w.keys[r.key] = len(w.records)
	w.records = append(w.records, r)
}

func (w *Writer) WriteInt(key string, v int) { w.add(record{key: key, kind: KindInt, i: int64(v)}) }

func (w *Writer) WriteDouble(key string, v float64) {
	w.add(record{key: key, kind: KindDouble, d: v})
}

func (w *Writer) WriteVector(key string, v *mat.VecDense) {
	d := make([]float64, v.Len())
	copy(d, utils.VecData(v))
	w.add(record{key: key, kind: KindVector, v: d})
}

func (w *Writer) WriteSlice(key string, v []float64) {
	d := make([]float64, len(v))
	copy(d, v)
	w.add(record{key: key, kind: KindVector, v: d})
}

func (w *Writer) WriteBytes(key string, b []byte) {
	c := make([]byte, len(b))
	copy(c, b)
	w.add(record{key: key, kind: KindBytes, b: c})
}

func (w *Writer) Len() int { return len(w.records) }

func (w *Writer) WriteTo(out io.Writer) (n int64, err error) {
	var (
		buf = &bytes.Buffer{}
		le  = binary.LittleEndian
	)
	buf.WriteString(magic)
	_ = binary.Write(buf, le, version)
	_ = binary.Write(buf, le, int64(w.Step))
	_ = binary.Write(buf, le, math.Float64bits(w.Time))
	_ = binary.Write(buf, le, uint32(len(w.records)))
	for _, r := range w.records {
		_ = binary.Write(buf, le, uint16(len(r.key)))
		buf.WriteString(r.key)
		buf.WriteByte(byte(r.kind))
		switch r.kind {
		case KindInt:
			_ = binary.Write(buf, le, r.i)
		case KindDouble:
			_ = binary.Write(buf, le, math.Float64bits(r.d))
		case KindVector:
			_ = binary.Write(buf, le, uint64(len(r.v)))
			for _, x := range r.v {
				_ = binary.Write(buf, le, math.Float64bits(x))
			}
		case KindBytes:
			_ = binary.Write(buf, le, uint64(len(r.b)))
			buf.Write(r.b)
		}
	}
	return buf.WriteTo(out)
}

// Save writes the record file atomically (temp file + rename).
func (w *Writer) Save(path string) (err error) {
	var (
		f   *os.File
		tmp = path + ".tmp"
	)
	if f, err = os.Create(tmp); err != nil {
		return utils.Wrap(utils.ErrIO, "restart.Save", err)
	}
	bw := bufio.NewWriter(f)
	if _, err = w.WriteTo(bw); err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return utils.Wrap(utils.ErrIO, "restart.Save", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return utils.Wrap(utils.ErrIO, "restart.Save", err)
	}
	return
}

// Reader gives keyed access to a parsed record file.
type Reader struct {
	Step    int
	Time    float64
	records []record
	keys    map[string]int
}

func Load(path string) (r *Reader, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return nil, utils.Wrap(utils.ErrIO, "restart.Load", err)
	}
	return NewReader(bytes.NewReader(data))
}

func NewReader(in io.Reader) (r *Reader, err error) {
	var (
		le    = binary.LittleEndian
		head  = make([]byte, len(magic))
		ver   uint32
		step  int64
		tbits uint64
		nrec  uint32
	)
	fail := func(e error) (*Reader, error) {
		return nil, utils.Wrap(utils.ErrIO, "restart.NewReader", e)
	}
	if _, err = io.ReadFull(in, head); err != nil {
		return fail(err)
	}
	if string(head) != magic {
		return fail(fmt.Errorf("not a restart file"))
	}
	for _, p := range []any{&ver, &step, &tbits, &nrec} {
		if err = binary.Read(in, le, p); err != nil {
			return fail(err)
		}
	}
	if ver != version {
		return fail(fmt.Errorf("unsupported restart version %d", ver))
	}
	r = &Reader{Step: int(step), Time: math.Float64frombits(tbits), keys: make(map[string]int)}
	for n := uint32(0); n < nrec; n++ {
		var (
			klen uint16
			kind [1]byte
			rec  record
		)
		if err = binary.Read(in, le, &klen); err != nil {
			return fail(err)
		}
		key := make([]byte, klen)
		if _, err = io.ReadFull(in, key); err != nil {
			return fail(err)
		}
		if _, err = io.ReadFull(in, kind[:]); err != nil {
			return fail(err)
		}
		rec.key, rec.kind = string(key), Kind(kind[0])
		switch rec.kind {
		case KindInt:
			err = binary.Read(in, le, &rec.i)
		case KindDouble:
			var bits uint64
			err = binary.Read(in, le, &bits)
			rec.d = math.Float64frombits(bits)
		case KindVector:
			var l uint64
			if err = binary.Read(in, le, &l); err == nil {
				bits := make([]uint64, l)
				err = binary.Read(in, le, bits)
				rec.v = make([]float64, l)
				for i, b := range bits {
					rec.v[i] = math.Float64frombits(b)
				}
			}
		case KindBytes:
			var l uint64
			if err = binary.Read(in, le, &l); err == nil {
				rec.b = make([]byte, l)
				_, err = io.ReadFull(in, rec.b)
			}
		default:
			err = fmt.Errorf("record %q has unknown kind %d", rec.key, rec.kind)
		}
		if err != nil {
			return fail(err)
		}
		r.keys[rec.key] = len(r.records)
		r.records = append(r.records, rec)
	}
	return
}

func (r *Reader) find(key string, kind Kind) (rec record, err error) {
	i, ok := r.keys[key]
	if !ok {
		return rec, utils.NewIOError("restart.Reader", "no record %q", key)
	}
	if rec = r.records[i]; rec.kind != kind {
		return rec, utils.NewIOError("restart.Reader", "record %q has kind %d, want %d", key, rec.kind, kind)
	}
	return
}

func (r *Reader) Has(key string) bool {
	_, ok := r.keys[key]
	return ok
}

func (r *Reader) HasInt(key string) bool {
	i, ok := r.keys[key]
	return ok && r.records[i].kind == KindInt
}

func (r *Reader) ReadInt(key string) (int, error) {
	rec, err := r.find(key, KindInt)
	return int(rec.i), err
}

func (r *Reader) ReadDouble(key string) (float64, error) {
	rec, err := r.find(key, KindDouble)
	return rec.d, err
}

func (r *Reader) ReadSlice(key string) ([]float64, error) {
	rec, err := r.find(key, KindVector)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rec.v))
	copy(out, rec.v)
	return out, nil
}

// ReadVectorInto fills v, whose length must match the stored vector.
func (r *Reader) ReadVectorInto(key string, v *mat.VecDense) error {
	rec, err := r.find(key, KindVector)
	if err != nil {
		return err
	}
	if len(rec.v) != v.Len() {
		return utils.NewIOError("restart.Reader", "record %q has length %d, want %d", key, len(rec.v), v.Len())
	}
	copy(utils.VecData(v), rec.v)
	return nil
}

func (r *Reader) ReadBytes(key string) ([]byte, error) {
	rec, err := r.find(key, KindBytes)
	return rec.b, err
}

// Rewrite returns a Writer holding the same records in the same order.
func (r *Reader) Rewrite() (w *Writer) {
	w = NewWriter(r.Step, r.Time)
	for _, rec := range r.records {
		w.add(rec)
	}
	return
}

// FileName is the record file of a restart step.
func FileName(prefix string, step int) string {
	return fmt.Sprintf("%s.restart.%d", prefix, step)
}
