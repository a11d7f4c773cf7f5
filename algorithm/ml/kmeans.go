// Package ml 提供 K-Means 聚类：质心初始化、Lloyd 迭代、收敛判断与训练/预测编排。
//
// Fit 返回不可变的 FittedModel，Predict 复用训练阶段拟合的预处理状态，
// 不同实例之间不共享任何状态。
package ml

import (
	"sync"

	"github.com/wyfcoding/clusterd/algorithm/preprocess"
	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/mat"
)

// FittedModel 一次训练的结果，创建后不再修改，访问器返回副本。
type FittedModel struct {
	cfg        Config
	state      *preprocess.State
	centroids  *mat.Dense
	labels     []int
	sizes      []int
	iterations int
	converged  bool
	shift      float64
	inertia    float64
}

// Fit 补齐零值参数后校验，完成预处理并运行 Lloyd 迭代。
// 显式给出的负数或越界值仍报告为配置错误。
// 标签来自最后一次分配，早于最后一次质心更新。
func Fit(X [][]float64, cfg Config) (*FittedModel, error) {
	cfg, err := cfg.WithDefaults().Validate()
	if err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, xerrors.DataShape("dataset is empty")
	}
	if cfg, err = cfg.ValidateFor(Shape(X)); err != nil {
		return nil, err
	}

	raw, err := preprocess.FromRows(X)
	if err != nil {
		return nil, err
	}
	state, work, err := preprocess.Fit(raw, preprocess.Options{
		Normalization:  cfg.Normalization,
		PCANComponents: cfg.PCANComponents,
	})
	if err != nil {
		return nil, err
	}

	rng := NewRand(cfg.RandomState)
	centroids, err := Initialize(cfg.Init, work, cfg.NClusters, rng)
	if err != nil {
		return nil, err
	}

	m := &FittedModel{cfg: cfg, state: state, centroids: centroids}
	prev := mat.NewDense(cfg.NClusters, state.OutputWidth(), nil)
	for iter := range cfg.MaxIter {
		m.labels = Assign(work, centroids, m.labels)
		prev.Copy(centroids)
		m.sizes = Update(work, m.labels, centroids)
		m.iterations = iter + 1
		if m.converged, m.shift = Converged(prev, centroids, cfg.Tol); m.converged {
			break
		}
	}
	m.inertia = Inertia(work, centroids, m.labels)
	return m, nil
}

// Predict 使用训练时的预处理状态变换 X，再做一次分配。
func (m *FittedModel) Predict(X [][]float64) ([]int, error) {
	if m == nil || m.state == nil {
		return nil, xerrors.NotFitted()
	}
	raw, err := preprocess.FromRows(X)
	if err != nil {
		return nil, err
	}
	work, err := m.state.Transform(raw)
	if err != nil {
		return nil, err
	}
	return Assign(work, m.centroids, nil), nil
}

// Centroids 返回变换空间中的质心副本。
func (m *FittedModel) Centroids() [][]float64 { return preprocess.ToRows(m.centroids) }

// Labels 返回训练样本的簇标签副本。
func (m *FittedModel) Labels() []int { return append([]int(nil), m.labels...) }

// ClusterSizes 返回最后一次更新时各簇的样本数。
func (m *FittedModel) ClusterSizes() []int { return append([]int(nil), m.sizes...) }

// Iterations 实际运行的迭代次数。
func (m *FittedModel) Iterations() int { return m.iterations }

// Converged 是否在 max_iter 之前收敛。
func (m *FittedModel) Converged() bool { return m.converged }

// Shift 最后一次迭代质心的最大坐标变化。
func (m *FittedModel) Shift() float64 { return m.shift }

// Inertia 样本到所属质心的平方距离之和。
func (m *FittedModel) Inertia() float64 { return m.inertia }

// Config 返回校验并规范化后的配置。
func (m *FittedModel) Config() Config { return m.cfg }

// Preprocessing 返回预处理状态，只能用于 Transform。
func (m *FittedModel) Preprocessing() *preprocess.State { return m.state }

// Model 包装未训练 -> 已训练的状态转换，可被多个 goroutine 共享。
type Model struct {
	mu     sync.RWMutex
	cfg    Config
	fitted *FittedModel
}

// NewModel 创建未训练的模型。
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Fit 训练并替换当前结果，失败时保留之前的结果。
func (m *Model) Fit(X [][]float64) error {
	fm, err := Fit(X, m.cfg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.fitted = fm
	m.mu.Unlock()
	return nil
}

// Predict 未训练时返回 NotFitted 错误。
func (m *Model) Predict(X [][]float64) ([]int, error) {
	m.mu.RLock()
	fm := m.fitted
	m.mu.RUnlock()
	return fm.Predict(X)
}

// Fitted 返回当前的训练结果。
func (m *Model) Fitted() (*FittedModel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fitted, m.fitted != nil
}
