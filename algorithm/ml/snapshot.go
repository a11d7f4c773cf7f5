package ml

import (
	"github.com/wyfcoding/clusterd/algorithm/preprocess"
	"github.com/wyfcoding/clusterd/xerrors"
)

// Snapshot 训练结果的可序列化形式，用于持久化后再预测。
type Snapshot struct {
	Config        Config              `json:"config"`
	Centroids     [][]float64         `json:"centroids"`
	Labels        []int               `json:"labels"`
	Sizes         []int               `json:"sizes"`
	Iterations    int                 `json:"iterations"`
	Converged     bool                `json:"converged"`
	Shift         float64             `json:"shift"`
	Inertia       float64             `json:"inertia"`
	Preprocessing preprocess.Snapshot `json:"preprocessing"`
}

// Snapshot 导出训练结果。
func (m *FittedModel) Snapshot() Snapshot {
	return Snapshot{
		Config:        m.cfg,
		Centroids:     m.Centroids(),
		Labels:        m.Labels(),
		Sizes:         m.ClusterSizes(),
		Iterations:    m.iterations,
		Converged:     m.converged,
		Shift:         m.shift,
		Inertia:       m.inertia,
		Preprocessing: m.state.Snapshot(),
	}
}

// Restore 从快照重建 FittedModel。
func Restore(snap Snapshot) (*FittedModel, error) {
	cfg, err := snap.Config.Validate()
	if err != nil {
		return nil, err
	}
	state, err := preprocess.Restore(snap.Preprocessing)
	if err != nil {
		return nil, err
	}
	centroids, err := preprocess.FromRows(snap.Centroids)
	if err != nil {
		return nil, err
	}
	k, d := centroids.Dims()
	if k != cfg.NClusters || d != state.OutputWidth() {
		return nil, xerrors.DataShape("snapshot centroids are %d×%d, expected %d×%d", k, d, cfg.NClusters, state.OutputWidth())
	}
	return &FittedModel{
		cfg:        cfg,
		state:      state,
		centroids:  centroids,
		labels:     append([]int(nil), snap.Labels...),
		sizes:      append([]int(nil), snap.Sizes...),
		iterations: snap.Iterations,
		converged:  snap.Converged,
		shift:      snap.Shift,
		inertia:    snap.Inertia,
	}, nil
}
