// Package preprocess 提供聚类前的数据预处理：缺失值填补、标准化/归一化与 PCA 降维。
//
// 每个步骤都拆成两个操作：Fit 系列构造函数只在训练矩阵上计算统计量，
// 已拟合对象上只暴露 Transform，推理阶段无法重新拟合。
package preprocess

import (
	"math"

	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/mat"
)

// FromRows 将行切片复制为 gonum 稠密矩阵。NaN 表示缺失值，±Inf 被拒绝。
// 调用方的切片不会被修改。
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, xerrors.DataShape("dataset is empty")
	}
	d := len(rows[0])
	if d == 0 {
		return nil, xerrors.DataShape("dataset has no features")
	}

	data := make([]float64, 0, len(rows)*d)
	for i, row := range rows {
		if len(row) != d {
			return nil, xerrors.DataShape("X must be a 2D matrix: row %d has %d features, expected %d", i, len(row), d).
				WithContext("row", i)
		}
		for j, v := range row {
			if math.IsInf(v, 0) {
				return nil, xerrors.DataShape("non-finite value at row %d column %d", i, j).
					WithContext("row", i).WithContext("column", j)
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), d, data), nil
}

// ToRows 将矩阵复制为行切片。
func ToRows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range r {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}
