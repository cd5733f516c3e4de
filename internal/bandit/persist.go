package bandit

import (
	"encoding/json"
	"fmt"
)

// #region json-shape

// armJSON is the persisted per-arm shape: row-major A and b.
type armJSON struct {
	A [][]float64 `json:"A"`
	B []float64   `json:"b"`
}

type modelJSON struct {
	Alpha float64            `json:"alpha"`
	Arms  map[string]armJSON `json:"arms"`
}

// #endregion json-shape

// #region export

// ExportJSON serializes alpha and every arm's (A, b).
func (l *LinUCB) ExportJSON() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	model := modelJSON{
		Alpha: l.alpha,
		Arms:  make(map[string]armJSON, len(l.arms)),
	}
	for id, arm := range l.arms {
		a := make([][]float64, Dim)
		for i := 0; i < Dim; i++ {
			a[i] = append([]float64(nil), arm.A[i][:]...)
		}
		model.Arms[id] = armJSON{A: a, B: append([]float64(nil), arm.B[:]...)}
	}

	data, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("export linucb: %w", err)
	}
	return string(data), nil
}

// #endregion export

// #region import

// ImportJSON replaces the bandit state from a serialized model. Unknown
// keys are ignored; missing A/b fields (or short rows) keep the (I, 0)
// prior for the affected entries. An error is returned only when the
// top-level structure fails to parse.
func (l *LinUCB) ImportJSON(data string) error {
	var model modelJSON
	if err := json.Unmarshal([]byte(data), &model); err != nil {
		return fmt.Errorf("import linucb: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if model.Alpha != 0 {
		l.alpha = model.Alpha
	}

	l.arms = make(map[string]Arm, len(model.Arms))
	for id, aj := range model.Arms {
		arm := newArm()
		for i := 0; i < Dim && i < len(aj.A); i++ {
			for j := 0; j < Dim && j < len(aj.A[i]); j++ {
				arm.A[i][j] = aj.A[i][j]
			}
		}
		for i := 0; i < Dim && i < len(aj.B); i++ {
			arm.B[i] = aj.B[i]
		}
		l.arms[id] = arm
	}

	return nil
}

// #endregion import
