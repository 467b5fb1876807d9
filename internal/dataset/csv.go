package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/ChizhovVadim/OthelloNet/internal/board"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Format int

const (
	// FormatNega rows are me,enemy,score,moves,move relative to the side to move.
	FormatNega Format = iota
	// FormatPly rows are ply,black,white,...,score with the score in
	// centi-disks for the side to move; odd plies are white to move.
	FormatPly
)

func (f Format) String() string {
	if f == FormatPly {
		return "ply"
	}
	return "nega"
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "nega":
		return FormatNega, nil
	case "ply":
		return FormatPly, nil
	}
	return FormatNega, errors.Errorf("unknown dataset format %q", s)
}

func ParseRow(fields []string, format Format) (Record, error) {
	var r Record
	var err error
	switch format {
	case FormatNega:
		if len(fields) < 3 {
			return r, errors.Errorf("want at least 3 fields, got %d", len(fields))
		}
		if r.Own, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
			return r, err
		}
		if r.Opponent, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return r, err
		}
		if r.Score, err = parseScore(fields[2]); err != nil {
			return r, err
		}
		if len(fields) >= 5 {
			if r.Moves, err = parseInt8(fields[3]); err != nil {
				return r, err
			}
			if r.Move, err = parseInt8(fields[4]); err != nil {
				return r, err
			}
		}
	case FormatPly:
		if len(fields) < 4 {
			return r, errors.Errorf("want at least 4 fields, got %d", len(fields))
		}
		ply, err := strconv.Atoi(fields[0])
		if err != nil {
			return r, err
		}
		if r.Own, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return r, err
		}
		if r.Opponent, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
			return r, err
		}
		if r.Score, err = parseScore(fields[len(fields)-1]); err != nil {
			return r, err
		}
		r.Score /= centiDisks
		r.Swap = ply%2 == 1
		r.Move = -1
	}
	if err := (board.Position{Own: r.Own, Opponent: r.Opponent}).Validate(); err != nil {
		return r, err
	}
	return r, nil
}

const centiDisks = 100

func parseScore(s string) (float32, error) {
	var v, err = strconv.ParseFloat(strings.TrimSpace(s), 32)
	return float32(v), err
}

func parseInt8(s string) (int8, error) {
	var v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 8)
	return int8(v), err
}

// ReadCSV parses every row of r. Rows with overlapping masks are rejected.
func ReadCSV(r io.Reader, format Format) ([]Record, error) {
	var result []Record
	var err = walkCSV(r, format, func(rec Record) error {
		result = append(result, rec)
		return nil
	})
	return result, err
}

func walkCSV(r io.Reader, format Format, onRecord func(Record) error) error {
	var reader = csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	for line := 1; ; line++ {
		var fields, err = reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		rec, err := ParseRow(fields, format)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := onRecord(rec); err != nil {
			return err
		}
	}
}

const importChunkSize = 4096

// Import streams a CSV dataset into the store in input order.
func Import(ctx context.Context, r io.Reader, format Format, store *Store) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	var chunks = make(chan []Record, 16)

	g.Go(func() error {
		defer close(chunks)
		var chunk []Record
		var err = walkCSV(r, format, func(rec Record) error {
			chunk = append(chunk, rec)
			if len(chunk) < importChunkSize {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunks <- chunk:
				chunk = nil
				return nil
			}
		})
		if err != nil {
			return err
		}
		if len(chunk) != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunks <- chunk:
			}
		}
		return nil
	})

	var imported int
	g.Go(func() error {
		for chunk := range chunks {
			if err := store.Append(chunk); err != nil {
				return err
			}
			imported += len(chunk)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return imported, err
	}
	log.Info().Int("count", imported).Int("total", store.Len()).Msg("import finished")
	return imported, nil
}
