// Package bandit implements a LinUCB contextual bandit: one ridge
// regression per candidate action over an 8-dimensional context encoding.
package bandit

import (
	"math"
	"strconv"
	"sync"
)

// #region arm

// Arm holds one action's ridge-regression state: A starts at the identity
// prior, b at zero.
type Arm struct {
	A Mat
	B Vec
}

func newArm() Arm {
	return Arm{A: identity()}
}

// #endregion arm

// #region linucb

// LinUCB selects actions by upper confidence bound. All methods are safe
// for concurrent use.
type LinUCB struct {
	mu    sync.Mutex
	alpha float64
	arms  map[string]Arm
}

// New creates a bandit with the given exploration coefficient.
func New(alpha float64) *LinUCB {
	return &LinUCB{
		alpha: alpha,
		arms:  make(map[string]Arm),
	}
}

// Alpha returns the exploration coefficient.
func (l *LinUCB) Alpha() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alpha
}

// #endregion linucb

// #region features

// FeatureVec encodes a context map into the d=8 feature vector:
// [hour sin, hour cos, battery/100, isCharging, isWeekend,
//  stationary, walking|running, driving|transit].
// Missing fields default to hour 12, battery 50, booleans false and
// motion stationary.
func FeatureVec(ctx map[string]string) Vec {
	var x Vec

	hour := 12.0
	if v, ok := ctx["hour"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			hour = parsed
		}
	}
	x[0] = math.Sin(2 * math.Pi * hour / 24.0)
	x[1] = math.Cos(2 * math.Pi * hour / 24.0)

	battery := 50.0
	if v, ok := ctx["batteryLevel"]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			battery = parsed
		}
	}
	x[2] = battery / 100.0

	if ctx["isCharging"] == "true" {
		x[3] = 1.0
	}
	if ctx["isWeekend"] == "true" {
		x[4] = 1.0
	}

	motion := "stationary"
	if v, ok := ctx["motionState"]; ok {
		motion = v
	}
	switch motion {
	case "stationary":
		x[5] = 1.0
	case "walking", "running":
		x[6] = 1.0
	case "driving", "transit":
		x[7] = 1.0
	}

	return x
}

// #endregion features

// #region select

// Select returns the index of the UCB-maximizing candidate, or −1 for an
// empty candidate list. Ties keep the earliest candidate. Arms are
// lazily initialized on first sight.
func (l *LinUCB) Select(actionIDs []string, ctx map[string]string) int {
	if len(actionIDs) == 0 {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	x := FeatureVec(ctx)

	bestIdx := 0
	bestUCB := math.Inf(-1)

	for i, id := range actionIDs {
		arm, ok := l.arms[id]
		if !ok {
			arm = newArm()
			l.arms[id] = arm
		}

		inv, ok := invert(arm.A)
		if !ok {
			// Singular despite the ridge prior: score against identity
			// for this selection only.
			inv = identity()
		}

		theta := matVec(inv, arm.B)
		exploit := dot(theta, x)
		explore := l.alpha * math.Sqrt(math.Max(0, dot(x, matVec(inv, x))))

		if ucb := exploit + explore; ucb > bestUCB {
			bestUCB = ucb
			bestIdx = i
		}
	}

	return bestIdx
}

// #endregion select

// #region update

// Update folds an observed reward into the arm: A += x·xᵀ, b += reward·x.
func (l *LinUCB) Update(actionID string, reward float64, ctx map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	x := FeatureVec(ctx)

	arm, ok := l.arms[actionID]
	if !ok {
		arm = newArm()
	}

	addOuter(&arm.A, x)
	for i := 0; i < Dim; i++ {
		arm.B[i] += reward * x[i]
	}
	l.arms[actionID] = arm
}

// ArmCount returns the number of initialized arms.
func (l *LinUCB) ArmCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.arms)
}

// #endregion update
