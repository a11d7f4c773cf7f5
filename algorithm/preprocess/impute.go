package preprocess

import (
	"math"

	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/mat"
)

// ColumnMeans 计算每一列非缺失值的均值。
// 整列缺失时均值无定义，返回 DataShape 错误并在上下文中携带列号，不会被静默替换为 0。
func ColumnMeans(X mat.Matrix) ([]float64, error) {
	r, c := X.Dims()
	means := make([]float64, c)
	for j := range c {
		sum, count := 0.0, 0
		for i := range r {
			v := X.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			sum += v
			count++
		}
		if count == 0 {
			return nil, xerrors.DataShape("column %d is entirely missing, its mean is undefined", j).
				WithContext("column", j)
		}
		means[j] = sum / float64(count)
	}
	return means, nil
}

// Impute 返回 X 的副本，每个缺失位置被替换为所在列的均值，同时返回这些均值。
func Impute(X mat.Matrix) (*mat.Dense, []float64, error) {
	means, err := ColumnMeans(X)
	if err != nil {
		return nil, nil, err
	}
	out, err := ImputeWith(X, means)
	if err != nil {
		return nil, nil, err
	}
	return out, means, nil
}

// ImputeWith 使用给定的列均值填补缺失值，返回新矩阵。推理时传入训练阶段记录的均值。
func ImputeWith(X mat.Matrix, means []float64) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(means) {
		return nil, xerrors.DataShape("expected %d features, got %d", len(means), c).
			WithContext("expected", len(means)).WithContext("got", c)
	}
	out := mat.DenseCopyOf(X)
	for i := range r {
		row := out.RawRowView(i)
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = means[j]
			}
		}
	}
	return out, nil
}
