package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ChizhovVadim/OthelloNet/internal/ml"
	"github.com/ChizhovVadim/OthelloNet/internal/nn"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var (
	ErrSchemaMismatch = errors.New("checkpoint: parameter schema mismatch")
	ErrEmpty          = errors.New("checkpoint: nothing to average")
	ErrExists         = errors.New("checkpoint: file already exists")
	ErrFormat         = errors.New("checkpoint: unsupported file format")
)

// Checkpoint is the full training state at the end of an epoch.
type Checkpoint struct {
	Epoch     int
	Model     nn.Config
	Params    map[string]ml.Matrix
	Optimizer ml.AdamState
}

// Binary specification of a checkpoint file (before zstd compression):
// - All the data is stored in little-endian layout
// - 4 bytes magic "OCKP", 2 bytes format version
// - 4 bytes epoch
// - model config: inputs, width, blocks (4 bytes each), head, activation (1 byte each), leaky slope (float64)
// - 4 bytes tensor count, then for every tensor sorted by name:
//   name length (2 bytes), name, rows, cols (4 bytes each), rows*cols float64 in column-major
// - optimizer: step (8 bytes), moment count (4 bytes), then for every moment sorted by name:
//   name length (2 bytes), name, length (4 bytes), first moments, second moments as float64
var magic = [4]byte{'O', 'C', 'K', 'P'}

const formatVersion uint16 = 2

// Save writes the checkpoint atomically. Existing files are never overwritten.
func Save(path string, c *Checkpoint) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Wrap(ErrExists, path)
	}
	var tmp = path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = write(f, c)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "write checkpoint %v", path)
	}
	return os.Rename(tmp, path)
}

func write(f io.Writer, c *Checkpoint) error {
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	var w = &binWriter{w: bufio.NewWriter(enc)}
	w.put(magic)
	w.put(formatVersion)
	w.put(uint32(c.Epoch))
	w.putConfig(c.Model)

	var names = sortedNames(c.Params)
	w.put(uint32(len(names)))
	for _, name := range names {
		var m = c.Params[name]
		w.putString(name)
		w.put(uint32(m.Rows))
		w.put(uint32(m.Cols))
		w.put(m.Data)
	}

	w.put(uint64(c.Optimizer.Step))
	var moments = make([]string, 0, len(c.Optimizer.Moments))
	for name := range c.Optimizer.Moments {
		moments = append(moments, name)
	}
	sort.Strings(moments)
	w.put(uint32(len(moments)))
	for _, name := range moments {
		var g = c.Optimizer.Moments[name]
		w.putString(name)
		w.put(uint32(len(g.M1)))
		w.put(g.M1)
		w.put(g.M2)
	}
	if w.err != nil {
		enc.Close()
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read checkpoint %v", path)
	}
	return c, nil
}

func read(f io.Reader) (*Checkpoint, error) {
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var r = &binReader{r: bufio.NewReader(dec)}

	var m [4]byte
	var version uint16
	r.get(&m)
	r.get(&version)
	if r.err != nil {
		return nil, r.err
	}
	if m != magic || version != formatVersion {
		return nil, ErrFormat
	}

	var c = &Checkpoint{Params: make(map[string]ml.Matrix)}
	c.Epoch = int(r.getUint32())
	c.Model = r.getConfig()

	var count = r.getUint32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		var name = r.getString()
		var rows, cols = int(r.getUint32()), int(r.getUint32())
		if rows > maxTensorSize || cols > maxTensorSize || rows*cols > maxTensorSize {
			return nil, errors.Wrapf(ErrFormat, "tensor %v too large", name)
		}
		var t = ml.NewMatrix(rows, cols)
		r.get(t.Data)
		c.Params[name] = t
	}

	var step uint64
	r.get(&step)
	c.Optimizer.Step = int(step)
	c.Optimizer.Moments = make(map[string]ml.Gradient)
	count = r.getUint32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		var name = r.getString()
		var n = int(r.getUint32())
		if n > maxTensorSize {
			return nil, errors.Wrapf(ErrFormat, "moment %v too large", name)
		}
		var g = ml.Gradient{M1: make([]float64, n), M2: make([]float64, n)}
		r.get(g.M1)
		r.get(g.M2)
		c.Optimizer.Moments[name] = g
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

const maxTensorSize = 1 << 28

func sortedNames(params map[string]ml.Matrix) []string {
	var names = make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type binWriter struct {
	w   *bufio.Writer
	err error
}

func (w *binWriter) put(v interface{}) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *binWriter) putString(s string) {
	w.put(uint16(len(s)))
	if w.err == nil {
		_, w.err = w.w.WriteString(s)
	}
}

func (w *binWriter) putConfig(c nn.Config) {
	w.put(uint32(c.Inputs))
	w.put(uint32(c.Width))
	w.put(uint32(c.Blocks))
	w.put(uint8(c.Head))
	w.put(uint8(c.Activation))
	w.put(math.Float64bits(c.LeakySlope))
}

type binReader struct {
	r   *bufio.Reader
	err error
}

func (r *binReader) get(v interface{}) {
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, v)
	}
}

func (r *binReader) getUint32() uint32 {
	var v uint32
	r.get(&v)
	return v
}

func (r *binReader) getString() string {
	var n uint16
	r.get(&n)
	if r.err != nil {
		return ""
	}
	var buf = make([]byte, n)
	_, r.err = io.ReadFull(r.r, buf)
	return string(buf)
}

func (r *binReader) getConfig() nn.Config {
	var c nn.Config
	c.Inputs = int(r.getUint32())
	c.Width = int(r.getUint32())
	c.Blocks = int(r.getUint32())
	var head uint8
	r.get(&head)
	c.Head = nn.HeadKind(head)
	var activation uint8
	r.get(&activation)
	c.Activation = nn.ActivationKind(activation)
	var slope uint64
	r.get(&slope)
	c.LeakySlope = math.Float64frombits(slope)
	return c
}

// FileName is the name of the checkpoint written after epoch.
func FileName(epoch int) string {
	return fmt.Sprintf("chpt-%04d.ckpt", epoch)
}

func Path(dir string, epoch int) string {
	return filepath.Join(dir, FileName(epoch))
}
