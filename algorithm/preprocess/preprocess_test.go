package preprocess

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/clusterd/xerrors"
	"gonum.org/v1/gonum/mat"
)

func TestFromRows(t *testing.T) {
	t.Run("ragged", func(t *testing.T) {
		_, err := FromRows([][]float64{{1, 2}, {3}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, xerrors.ErrDataShape))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := FromRows(nil)
		assert.ErrorIs(t, err, xerrors.ErrDataShape)
	})
	t.Run("inf rejected", func(t *testing.T) {
		_, err := FromRows([][]float64{{1, math.Inf(1)}})
		assert.ErrorIs(t, err, xerrors.ErrDataShape)
	})
	t.Run("nan allowed and input untouched", func(t *testing.T) {
		rows := [][]float64{{1, math.NaN()}, {2, 3}}
		m, err := FromRows(rows)
		require.NoError(t, err)
		m.Set(1, 1, 99)
		assert.Equal(t, 3.0, rows[1][1])
	})
}

func TestImputeColumnMean(t *testing.T) {
	X, err := FromRows([][]float64{{1, 5}, {math.NaN(), 6}, {3, 7}})
	require.NoError(t, err)

	out, means, err := Impute(X)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.At(1, 0))
	assert.Equal(t, []float64{2, 6}, means)
	assert.True(t, math.IsNaN(X.At(1, 0)), "input matrix must not be mutated")
}

func TestImputeAllMissingColumn(t *testing.T) {
	X, err := FromRows([][]float64{{1, math.NaN()}, {2, math.NaN()}})
	require.NoError(t, err)

	_, _, err = Impute(X)
	require.ErrorIs(t, err, xerrors.ErrDataShape)
	e, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, 1, e.Context["column"])
}

func TestParseNormalization(t *testing.T) {
	cases := map[string]Normalization{
		"":        ZScore,
		"z-score": ZScore,
		"z_score": ZScore,
		"minmax":  MinMax,
		"none":    None,
	}
	for in, want := range cases {
		got, err := ParseNormalization(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseNormalization("robust")
	assert.ErrorIs(t, err, xerrors.ErrConfiguration)
}

func TestNormalizerZScore(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
		4, 7,
	})
	n, err := FitNormalizer(ZScore, X)
	require.NoError(t, err)

	out, err := n.Transform(X)
	require.NoError(t, err)

	col := mat.Col(nil, 0, out)
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-9)
	// 总体标准差 sqrt(1.25)
	assert.InDelta(t, (1-2.5)/math.Sqrt(1.25), out.At(0, 0), 1e-9)
	// 常数列不报错，结果为 0
	for i := range 4 {
		assert.Equal(t, 0.0, out.At(i, 1))
	}
}

func TestNormalizerMinMax(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{2, 4, 6})
	n, err := FitNormalizer(MinMax, X)
	require.NoError(t, err)

	out, err := n.Transform(mat.NewDense(2, 1, []float64{2, 8}))
	require.NoError(t, err)
	assert.InDelta(t, 0, out.At(0, 0), 1e-9)
	// 变换只使用训练统计量，超出训练范围的值不会被截断
	assert.InDelta(t, 1.5, out.At(1, 0), 1e-9)
}

func TestNormalizerWidthMismatch(t *testing.T) {
	n, err := FitNormalizer(None, mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	require.NoError(t, err)
	_, err = n.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, xerrors.ErrDataShape)
}

func TestPCA(t *testing.T) {
	// 点几乎落在 y = x 上，第一主成分应与 (1,1)/√2 共线
	X := mat.NewDense(5, 2, []float64{
		0, 0.1,
		1, 0.9,
		2, 2.1,
		3, 2.9,
		4, 4.0,
	})
	p, err := FitPCA(X, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Components())

	b0, b1 := p.basis.At(0, 0), p.basis.At(1, 0)
	assert.InDelta(t, 1, math.Abs(b0+b1)/math.Sqrt2, 1e-2)

	out, err := p.Transform(X)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 1, c)
}

func TestPCAComponentsValidation(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 7})
	_, err := FitPCA(X, 3)
	assert.ErrorIs(t, err, xerrors.ErrConfiguration)

	X = mat.NewDense(2, 4, []float64{1, 2, 3, 4, 5, 6, 7, 9})
	_, err = FitPCA(X, 2)
	assert.ErrorIs(t, err, xerrors.ErrConfiguration, "n_components must not exceed samples-1")
}

func TestStateTransformMatchesFit(t *testing.T) {
	rows := [][]float64{
		{1, 10, 3},
		{2, math.NaN(), 1},
		{3, 14, 2},
		{8, 11, 9},
		{9, 12, 8},
	}
	X, err := FromRows(rows)
	require.NoError(t, err)

	s, work, err := Fit(X, Options{Normalization: ZScore, PCANComponents: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, s.InputWidth())
	assert.Equal(t, 2, s.OutputWidth())

	again, err := s.Transform(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(work, again, 1e-9))
}

func TestStateTransformRejectsWidth(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	s, _, err := Fit(X, Options{Normalization: None})
	require.NoError(t, err)

	_, err = s.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, xerrors.ErrDataShape)
}

func TestSnapshotRoundTrip(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 2, 3,
		2, 1, 0,
		5, 4, 4,
		6, 6, 5,
	})
	s, _, err := Fit(X, Options{Normalization: MinMax, PCANComponents: 1})
	require.NoError(t, err)

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	restored, err := Restore(snap)
	require.NoError(t, err)

	probe := mat.NewDense(2, 3, []float64{0, 0, 0, 3, math.NaN(), 2})
	want, err := s.Transform(probe)
	require.NoError(t, err)
	got, err := restored.Transform(probe)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	_, err := Restore(Snapshot{Width: 2, Means: []float64{1}})
	assert.ErrorIs(t, err, xerrors.ErrDataShape)
}
