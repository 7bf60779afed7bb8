package track

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State vector layout: [x, y, z, vx, vy, vz].
const (
	stateDim = 6
	measDim  = 3
)

// ObservationModel selects the observation matrix H used by the update.
type ObservationModel string

const (
	// ObservationCoupled observes position plus velocity on each axis
	// (H[i][i] = H[i][i+3] = 1). This is the filter's historical model and
	// the default; the regression values in the tests depend on it.
	ObservationCoupled ObservationModel = "coupled"
	// ObservationPosition observes position only (H = [I3 | 0]).
	ObservationPosition ObservationModel = "position"
)

// CovarianceUpdate selects how P is refreshed after a measurement update.
type CovarianceUpdate string

const (
	// CovarianceHold keeps the predicted covariance (P = P'). This is the
	// historical behaviour and the default. It skips the (I - KH) contraction,
	// so P never shrinks.
	CovarianceHold CovarianceUpdate = "hold"
	// CovarianceJoseph applies the Joseph form
	// P = (I - KH) P' (I - KH)ᵗ + K R Kᵗ.
	CovarianceJoseph CovarianceUpdate = "joseph"
)

// KalmanConfig holds the tunable parameters of the Kalman estimator.
type KalmanConfig struct {
	InitialCovariance float64 // diagonal of P at seeding
	MeasurementNoise  float64 // diagonal of R
	ProcessNoisePos   float64 // position diagonal of Q
	ProcessNoiseVel   float64 // velocity diagonal of Q

	// MeasurementBias is a fixed offset added to every observed coordinate
	// before the update.
	MeasurementBias float64

	// Acceleration is the control input u applied through B.
	Acceleration Vector3

	Observation      ObservationModel
	CovarianceUpdate CovarianceUpdate
}

// DefaultKalmanConfig returns the parameters the filter has always run with:
// P0 = 0.5·I, R = Q = 0, u = 0, a bias of 1.0, coupled H and held covariance.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		InitialCovariance: 0.5,
		MeasurementBias:   1.0,
		Observation:       ObservationCoupled,
		CovarianceUpdate:  CovarianceHold,
	}
}

// Validate checks that the configuration describes a usable filter.
func (c KalmanConfig) Validate() error {
	if c.InitialCovariance < 0 || math.IsNaN(c.InitialCovariance) {
		return fmt.Errorf("initial covariance must be non-negative, got %f", c.InitialCovariance)
	}
	if c.MeasurementNoise < 0 || math.IsNaN(c.MeasurementNoise) {
		return fmt.Errorf("measurement noise must be non-negative, got %f", c.MeasurementNoise)
	}
	if c.ProcessNoisePos < 0 || c.ProcessNoiseVel < 0 {
		return fmt.Errorf("process noise must be non-negative, got pos=%f vel=%f", c.ProcessNoisePos, c.ProcessNoiseVel)
	}
	if !c.Acceleration.IsFinite() || math.IsNaN(c.MeasurementBias) || math.IsInf(c.MeasurementBias, 0) {
		return fmt.Errorf("acceleration and measurement bias must be finite")
	}
	switch c.Observation {
	case ObservationCoupled, ObservationPosition:
	default:
		return fmt.Errorf("unknown observation model %q", c.Observation)
	}
	switch c.CovarianceUpdate {
	case CovarianceHold, CovarianceJoseph:
	default:
		return fmt.Errorf("unknown covariance update %q", c.CovarianceUpdate)
	}
	return nil
}

// KalmanEstimator is a linear constant-velocity Kalman filter over a
// 6-element position/velocity state. The zero value is not usable; create
// one with NewKalmanEstimator.
type KalmanEstimator struct {
	cfg KalmanConfig

	x *mat.VecDense // nil until the first measurement seeds the filter
	p *mat.SymDense
	q *mat.SymDense
	r *mat.SymDense
	h *mat.Dense
	u *mat.VecDense
	w *mat.VecDense // process noise offset, zero

	lastUpdateTime float64
	history        history
}

// NewKalmanEstimator returns an uninitialised filter.
func NewKalmanEstimator(cfg KalmanConfig) (*KalmanEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kalman config: %w", err)
	}

	h := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		h.Set(i, i, 1)
		if cfg.Observation == ObservationCoupled {
			h.Set(i, i+measDim, 1)
		}
	}

	return &KalmanEstimator{
		cfg: cfg,
		p:   scaledIdentity(stateDim, cfg.InitialCovariance),
		q:   processNoise(cfg.ProcessNoisePos, cfg.ProcessNoiseVel),
		r:   scaledIdentity(measDim, cfg.MeasurementNoise),
		h:   h,
		u:   mat.NewVecDense(measDim, []float64{cfg.Acceleration.X, cfg.Acceleration.Y, cfg.Acceleration.Z}),
		w:   mat.NewVecDense(stateDim, nil),
	}, nil
}

// AddMeasurement implements Estimator.
func (k *KalmanEstimator) AddMeasurement(m Measurement) (Track, error) {
	k.history = append(k.history, m)

	var err error
	if k.x == nil {
		k.seed(m)
	} else {
		err = k.step(m)
		if err != nil {
			opsf("kft: holding state: %v", err)
		}
	}

	return Track{
		Velocity:     Vector3{X: k.x.AtVec(3), Y: k.x.AtVec(4), Z: k.x.AtVec(5)},
		Position:     Vector3{X: k.x.AtVec(0), Y: k.x.AtVec(1), Z: k.x.AtVec(2)},
		Measurements: k.history.snapshot(),
	}, err
}

// Initialised reports whether a measurement has seeded the filter.
func (k *KalmanEstimator) Initialised() bool {
	return k.x != nil
}

// LastUpdateTime returns the time of the most recent committed state.
func (k *KalmanEstimator) LastUpdateTime() float64 {
	return k.lastUpdateTime
}

// State returns a copy of the state vector, or nil before seeding.
func (k *KalmanEstimator) State() []float64 {
	if k.x == nil {
		return nil
	}
	out := make([]float64, stateDim)
	copy(out, k.x.RawVector().Data)
	return out
}

// Covariance returns a copy of P.
func (k *KalmanEstimator) Covariance() *mat.SymDense {
	out := mat.NewSymDense(stateDim, nil)
	out.CopySym(k.p)
	return out
}

func (k *KalmanEstimator) seed(m Measurement) {
	k.x = mat.NewVecDense(stateDim, []float64{m.Position.X, m.Position.Y, m.Position.Z, 0, 0, 0})
	k.lastUpdateTime = m.Time
	tracef("kft: seeded at t=%.3f with position %s", m.Time, m.Position)
}

// step runs predict then update and commits the result only when every
// intermediate is usable.
func (k *KalmanEstimator) step(m Measurement) error {
	dt := clampDt(m.Time, k.lastUpdateTime)
	if m.Time < k.lastUpdateTime {
		diagf("kft: measurement at t=%.3f precedes state time %.3f, using dt=0", m.Time, k.lastUpdateTime)
	}

	xPred, pPred := k.predict(dt)

	y := mat.NewVecDense(measDim, []float64{
		m.Position.X + k.cfg.MeasurementBias,
		m.Position.Y + k.cfg.MeasurementBias,
		m.Position.Z + k.cfg.MeasurementBias,
	})

	xNew, pNew, err := k.update(xPred, pPred, y)
	if err != nil {
		return &NumericalError{Stage: "update", Time: m.Time, Err: err}
	}

	k.x = xNew
	k.p = pNew
	k.lastUpdateTime = m.Time
	return nil
}

// predict propagates the state and covariance forward by dt:
//
//	X' = A·X + B·u + w
//	P' = A·P·Aᵗ + Q
func (k *KalmanEstimator) predict(dt float64) (*mat.VecDense, *mat.SymDense) {
	a := transition(dt)
	b := control(dt)

	xPred := mat.NewVecDense(stateDim, nil)
	xPred.MulVec(a, k.x)
	var bu mat.VecDense
	bu.MulVec(b, k.u)
	xPred.AddVec(xPred, &bu)
	xPred.AddVec(xPred, k.w)

	var ap, apa mat.Dense
	ap.Mul(a, k.p)
	apa.Mul(&ap, a.T())
	apa.Add(&apa, k.q)

	tracef("kft: predict dt=%.4f\nX'=%v\nP'=%v", dt, mat.Formatted(xPred.T()), mat.Formatted(&apa, mat.Squeeze()))
	return xPred, symmetrise(&apa)
}

// update folds the observation y into the prediction:
//
//	S = H·P'·Hᵗ + R
//	K = P'·Hᵗ·S⁻¹
//	X = X' + K·(Y − H·X')
func (k *KalmanEstimator) update(xPred *mat.VecDense, pPred *mat.SymDense, y *mat.VecDense) (*mat.VecDense, *mat.SymDense, error) {
	var hp, s mat.Dense
	hp.Mul(k.h, pPred)
	s.Mul(&hp, k.h.T())
	s.Add(&s, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}
	if !finiteMatrix(&sInv) {
		return nil, nil, ErrSingularInnovation
	}

	var pht, gain mat.Dense
	pht.Mul(pPred, k.h.T())
	gain.Mul(&pht, &sInv)

	var hx mat.VecDense
	hx.MulVec(k.h, xPred)
	innovation := mat.NewVecDense(measDim, nil)
	innovation.SubVec(y, &hx)

	xNew := mat.NewVecDense(stateDim, nil)
	xNew.MulVec(&gain, innovation)
	xNew.AddVec(xPred, xNew)

	pNew := pPred
	if k.cfg.CovarianceUpdate == CovarianceJoseph {
		pNew = k.joseph(pPred, &gain)
	}

	if !finiteMatrix(xNew) || !finiteMatrix(pNew) {
		return nil, nil, ErrNonFiniteState
	}

	tracef("kft: update K=%v\ninnovation=%v\nX=%v", mat.Formatted(&gain, mat.Squeeze()), mat.Formatted(innovation.T()), mat.Formatted(xNew.T()))
	return xNew, pNew, nil
}

// joseph computes (I − KH)·P'·(I − KH)ᵗ + K·R·Kᵗ, which stays symmetric
// positive semi-definite for any gain.
func (k *KalmanEstimator) joseph(pPred *mat.SymDense, gain *mat.Dense) *mat.SymDense {
	var kh mat.Dense
	kh.Mul(gain, k.h)
	ikh := identity(stateDim)
	ikh.Sub(ikh, &kh)

	var left, out, kr, krk mat.Dense
	left.Mul(ikh, pPred)
	out.Mul(&left, ikh.T())
	kr.Mul(gain, k.r)
	krk.Mul(&kr, gain.T())
	out.Add(&out, &krk)
	return symmetrise(&out)
}

// transition builds the constant-velocity matrix A: identity with
// A[i][i+3] = dt.
func transition(dt float64) *mat.Dense {
	a := identity(stateDim)
	for i := 0; i < measDim; i++ {
		a.Set(i, i+measDim, dt)
	}
	return a
}

// control builds B, mapping acceleration into position (½dt²) and
// velocity (dt).
func control(dt float64) *mat.Dense {
	b := mat.NewDense(stateDim, measDim, nil)
	for i := 0; i < measDim; i++ {
		b.Set(i, i, 0.5*dt*dt)
		b.Set(i+measDim, i, dt)
	}
	return b
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func scaledIdentity(n int, v float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, v)
	}
	return m
}

func processNoise(pos, vel float64) *mat.SymDense {
	q := mat.NewSymDense(stateDim, nil)
	for i := 0; i < measDim; i++ {
		q.SetSym(i, i, pos)
		q.SetSym(i+measDim, i+measDim, vel)
	}
	return q
}

// symmetrise returns (M + Mᵗ)/2 as a SymDense, removing the rounding
// asymmetry that accumulates in A·P·Aᵗ.
func symmetrise(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func finiteMatrix(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
