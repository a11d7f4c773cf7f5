package preprocess

import (
	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/mat"
)

// Options 预处理流水线参数。
type Options struct {
	Normalization  Normalization
	PCANComponents int // 0 表示不降维
}

// State 训练阶段拟合得到的完整预处理状态：填补 -> 标准化 -> 投影。
// 拟合后只能调用 Transform。
type State struct {
	width      int
	means      []float64
	normalizer *Normalizer
	pca        *PCA
}

// Fit 在训练矩阵上依次拟合各步骤，返回状态与变换后的工作矩阵。
func Fit(X mat.Matrix, opts Options) (*State, *mat.Dense, error) {
	r, c := X.Dims()
	if opts.PCANComponents != 0 {
		if err := CheckPCAComponents(opts.PCANComponents, r, c); err != nil {
			return nil, nil, err
		}
	}

	work, means, err := Impute(X)
	if err != nil {
		return nil, nil, err
	}

	kind := opts.Normalization
	if kind == "" {
		kind = ZScore
	}
	norm, err := FitNormalizer(kind, work)
	if err != nil {
		return nil, nil, err
	}
	if work, err = norm.Transform(work); err != nil {
		return nil, nil, err
	}

	s := &State{width: c, means: means, normalizer: norm}
	if opts.PCANComponents > 0 {
		if s.pca, err = FitPCA(work, opts.PCANComponents); err != nil {
			return nil, nil, err
		}
		if work, err = s.pca.Transform(work); err != nil {
			return nil, nil, err
		}
	}
	return s, work, nil
}

// InputWidth 训练时的原始特征数。
func (s *State) InputWidth() int { return s.width }

// OutputWidth 变换后的特征数。
func (s *State) OutputWidth() int {
	if s.pca != nil {
		return s.pca.Components()
	}
	return s.width
}

// ColumnMeans 返回训练阶段的填补均值副本。
func (s *State) ColumnMeans() []float64 {
	return append([]float64(nil), s.means...)
}

// Normalization 返回使用的标准化方式。
func (s *State) Normalization() Normalization { return s.normalizer.Kind() }

// PCA 返回投影，未降维时为 nil。
func (s *State) PCA() *PCA { return s.pca }

// Transform 使用已存储的统计量变换新数据，列数必须与训练时一致。
func (s *State) Transform(X mat.Matrix) (*mat.Dense, error) {
	if _, c := X.Dims(); c != s.width {
		return nil, xerrors.DataShape("expected %d features, got %d", s.width, c).
			WithContext("expected", s.width).WithContext("got", c)
	}
	work, err := ImputeWith(X, s.means)
	if err != nil {
		return nil, err
	}
	if work, err = s.normalizer.Transform(work); err != nil {
		return nil, err
	}
	if s.pca != nil {
		return s.pca.Transform(work)
	}
	return work, nil
}

// Snapshot 预处理状态的可序列化形式。
type Snapshot struct {
	Width         int           `json:"width"`
	Means         []float64     `json:"means"`
	Normalization Normalization `json:"normalization"`
	Shift         []float64     `json:"shift"`
	Scale         []float64     `json:"scale"`
	PCAMean       []float64     `json:"pca_mean,omitempty"`
	PCABasis      [][]float64   `json:"pca_basis,omitempty"`
	PCAVariances  []float64     `json:"pca_variances,omitempty"`
}

// Snapshot 导出状态。
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Width:         s.width,
		Means:         append([]float64(nil), s.means...),
		Normalization: s.normalizer.kind,
		Shift:         append([]float64(nil), s.normalizer.shift...),
		Scale:         append([]float64(nil), s.normalizer.scale...),
	}
	if s.pca != nil {
		snap.PCAMean = append([]float64(nil), s.pca.mean...)
		snap.PCABasis = ToRows(s.pca.basis)
		snap.PCAVariances = s.pca.ExplainedVariance()
	}
	return snap
}

// Restore 从快照重建状态，并校验各部分维度一致。
func Restore(snap Snapshot) (*State, error) {
	w := snap.Width
	if w <= 0 || len(snap.Means) != w || len(snap.Shift) != w || len(snap.Scale) != w {
		return nil, xerrors.DataShape("corrupt preprocessing snapshot: width %d", w)
	}
	switch snap.Normalization {
	case ZScore, MinMax, None:
	default:
		return nil, xerrors.Configuration("unknown normalization %q", string(snap.Normalization))
	}
	s := &State{
		width: w,
		means: append([]float64(nil), snap.Means...),
		normalizer: &Normalizer{
			kind:  snap.Normalization,
			width: w,
			shift: append([]float64(nil), snap.Shift...),
			scale: append([]float64(nil), snap.Scale...),
		},
	}
	if len(snap.PCABasis) > 0 {
		if len(snap.PCABasis) != w || len(snap.PCAMean) != w {
			return nil, xerrors.DataShape("corrupt preprocessing snapshot: pca basis has %d rows, expected %d", len(snap.PCABasis), w)
		}
		basis, err := FromRows(snap.PCABasis)
		if err != nil {
			return nil, err
		}
		s.pca = &PCA{
			mean:      append([]float64(nil), snap.PCAMean...),
			basis:     basis,
			variances: append([]float64(nil), snap.PCAVariances...),
		}
	}
	return s, nil
}
