package dataset

import (
	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

// Source is a read-only, random-access collection of records.
type Source interface {
	Len() int
	Record(index int) (Record, error)
}

type MemorySource []Record

func (m MemorySource) Len() int { return len(m) }

func (m MemorySource) Record(index int) (Record, error) {
	if index < 0 || index >= len(m) {
		return Record{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", index, len(m))
	}
	return m[index], nil
}

type Sample struct {
	Features []float64
	Label    float64
	Symmetry int
}

// SampleStore encodes records and augments each retrieval with a
// uniformly drawn board symmetry. It is safe for concurrent use when
// the underlying source is.
type SampleStore struct {
	source Source
}

func NewSampleStore(source Source) *SampleStore {
	return &SampleStore{source: source}
}

func (s *SampleStore) Len() int {
	return s.source.Len()
}

// Get draws the symmetry from the shared, goroutine-safe generator.
func (s *SampleStore) Get(index int) (Sample, error) {
	return s.get(index, rand.Intn(board.SymmetryCount))
}

// GetWith draws the symmetry from rnd, which must not be shared between goroutines.
func (s *SampleStore) GetWith(index int, rnd *rand.Rand) (Sample, error) {
	return s.get(index, rnd.Intn(board.SymmetryCount))
}

// GetTransformed applies the given symmetry instead of a random one.
func (s *SampleStore) GetTransformed(index, symmetry int) (Sample, error) {
	return s.get(index, symmetry)
}

func (s *SampleStore) get(index, symmetry int) (Sample, error) {
	var rec, err = s.source.Record(index)
	if err != nil {
		return Sample{}, err
	}
	var features = make([]float64, board.FeatureSize)
	board.EncodeTo(features, board.Symmetries[symmetry].ApplyPosition(rec.Position()))
	return Sample{
		Features: features,
		Label:    rec.Label(),
		Symmetry: symmetry,
	}, nil
}
