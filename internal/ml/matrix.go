package ml

// Matrix is stored column-major: element (row, col) is Data[col*Rows+row].
// Activations use one row per sample and one column per feature.
type Matrix struct {
	Data []float64
	Rows int
	Cols int
}

func NewMatrix(rows, cols int) Matrix {
	return Matrix{
		Data: make([]float64, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// MatrixFromRows builds a batch matrix from per-sample vectors of equal length.
func MatrixFromRows(rows [][]float64) Matrix {
	if len(rows) == 0 {
		return Matrix{}
	}
	var m = NewMatrix(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != m.Cols {
			panic("ml: ragged rows")
		}
		for c, v := range row {
			m.Set(r, c, v)
		}
	}
	return m
}

func (m *Matrix) Get(row, col int) float64 {
	return m.Data[col*m.Rows+row]
}

func (m *Matrix) Set(row, col int, value float64) {
	m.Data[col*m.Rows+row] = value
}

func (m *Matrix) Add(row, col int, delta float64) {
	m.Data[col*m.Rows+row] += delta
}

// Column returns a view of one column.
func (m *Matrix) Column(col int) []float64 {
	return m.Data[col*m.Rows : (col+1)*m.Rows]
}

func (m *Matrix) Row(row int) []float64 {
	var result = make([]float64, m.Cols)
	for col := range result {
		result[col] = m.Get(row, col)
	}
	return result
}

func (m *Matrix) Reset() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}

func (m *Matrix) Clone() Matrix {
	var data = make([]float64, len(m.Data))
	copy(data, m.Data)
	return Matrix{Data: data, Rows: m.Rows, Cols: m.Cols}
}

func (m *Matrix) SameShape(other *Matrix) bool {
	return m.Rows == other.Rows && m.Cols == other.Cols
}

// AddMatrix adds other to m elementwise.
func (m *Matrix) AddMatrix(other *Matrix) {
	if !m.SameShape(other) {
		panic("ml: shape mismatch")
	}
	for i := range m.Data {
		m.Data[i] += other.Data[i]
	}
}
