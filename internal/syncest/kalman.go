// Package syncest implements C3, the Clock/Drift Estimator: a two-state
// Kalman filter (offset, fractional drift rate) fed with the TAB's
// smoothed sync error at the device callback rate (spec §4.3).
package syncest

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Tunables controls the filter's process/measurement noise and the
// reliability threshold.
type Tunables struct {
	ProcessNoiseOffset float64 // Q[0][0], us^2 per second of process noise on offset
	ProcessNoiseDrift  float64 // Q[1][1], variance growth of the drift estimate
	MeasurementNoise   float64 // R, us^2 variance of each smoothed-error sample
	InitialCovariance  float64 // P0, initial uncertainty on both states
	ReliabilitySigma2  float64 // P[drift,drift] must drop below this
	MinWindowUS        int64   // minimum absorbed-sample window (spec: ~10s)
}

// DefaultTunables mirror the values named in spec §4.3/§4.4.
func DefaultTunables() Tunables {
	return Tunables{
		ProcessNoiseOffset: 10.0,
		ProcessNoiseDrift:  1e-12,
		MeasurementNoise:   2_000.0,
		InitialCovariance:  1e8,
		ReliabilitySigma2:  1e-10,
		MinWindowUS:        10_000_000,
	}
}

// Estimator is C3. State x = [offset_us, drift_frac]^T; drift_frac is a
// dimensionless rate (drift_ppm = drift_frac * 1e6).
type Estimator struct {
	mu sync.Mutex

	tunables Tunables

	x *mat.VecDense // 2x1
	p *mat.Dense    // 2x2

	haveLastUpdate bool
	lastUpdateUS   int64
	windowUS       int64
	updates        int
}

// New creates an Estimator with the given tunables.
func New(t Tunables) *Estimator {
	e := &Estimator{tunables: t}
	e.resetState()
	return e
}

func (e *Estimator) resetState() {
	e.x = mat.NewVecDense(2, []float64{0, 0})
	e.p = mat.NewDense(2, 2, []float64{
		e.tunables.InitialCovariance, 0,
		0, e.tunables.InitialCovariance,
	})
}

// Update feeds one smoothed-sync-error sample (microseconds, positive =
// behind) measured at nowUS, predicting forward from the previous update
// before applying the measurement.
func (e *Estimator) Update(nowUS int64, smoothedErrorUS float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.haveLastUpdate {
		e.lastUpdateUS = nowUS
		e.haveLastUpdate = true
	}
	dtUS := float64(nowUS - e.lastUpdateUS)
	e.lastUpdateUS = nowUS
	if dtUS < 0 {
		dtUS = 0
	}
	e.windowUS += int64(dtUS)

	e.predict(dtUS)
	e.measure(smoothedErrorUS)
	e.updates++
}

// predict advances the state estimate and covariance by dtUS using the
// constant-drift process model F=[[1,dt],[0,1]]. Caller holds mu.
func (e *Estimator) predict(dtUS float64) {
	f := mat.NewDense(2, 2, []float64{1, dtUS, 0, 1})

	var xNew mat.VecDense
	xNew.MulVec(f, e.x)
	e.x = &xNew

	// The process-noise tunables are per second of elapsed time.
	dtSec := dtUS / 1e6
	q := mat.NewDense(2, 2, []float64{
		e.tunables.ProcessNoiseOffset * dtSec, 0,
		0, e.tunables.ProcessNoiseDrift * dtSec,
	})

	var fp, fpft, pNew mat.Dense
	fp.Mul(f, e.p)
	fpft.Mul(&fp, f.T())
	pNew.Add(&fpft, q)
	e.p = &pNew
}

// measure applies the scalar measurement update (H=[1,0], z=smoothedError)
// via the standard Kalman gain. Caller holds mu.
func (e *Estimator) measure(z float64) {
	h := mat.NewDense(1, 2, []float64{1, 0})

	var hp mat.Dense
	hp.Mul(h, e.p)

	var hpht mat.Dense
	hpht.Mul(&hp, h.T())
	s := hpht.At(0, 0) + e.tunables.MeasurementNoise
	if s == 0 {
		return
	}

	var pht mat.Dense
	pht.Mul(e.p, h.T())

	k := mat.NewVecDense(2, []float64{pht.At(0, 0) / s, pht.At(1, 0) / s})

	y := z - e.x.AtVec(0)

	var correction mat.VecDense
	correction.ScaleVec(y, k)

	var xNew mat.VecDense
	xNew.AddVec(e.x, &correction)
	e.x = &xNew

	var kh mat.Dense
	kh.Mul(k, h)

	identity := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	var ikh mat.Dense
	ikh.Sub(identity, &kh)

	var pNew mat.Dense
	pNew.Mul(&ikh, e.p)
	e.p = &pNew
}

// DriftPPM returns the current drift-rate estimate in parts per million.
func (e *Estimator) DriftPPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.x.AtVec(1) * 1e6
}

// OffsetUS returns the current offset-state estimate in microseconds.
func (e *Estimator) OffsetUS() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.x.AtVec(0)
}

// IsDriftReliable is true once the drift covariance has dropped below the
// tunable threshold and at least MinWindowUS of samples have been
// absorbed (spec §4.3).
func (e *Estimator) IsDriftReliable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.At(1, 1) < e.tunables.ReliabilitySigma2 && e.windowUS >= e.tunables.MinWindowUS
}

// Reanchor clears the offset state (and its covariance/cross-covariance)
// while preserving the drift estimate and its covariance, enabling fast
// re-lock after a stream seek or transport reset (spec §4.3, GLOSSARY).
func (e *Estimator) Reanchor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	driftEstimate := e.x.AtVec(1)
	driftVariance := e.p.At(1, 1)

	e.x = mat.NewVecDense(2, []float64{0, driftEstimate})
	e.p = mat.NewDense(2, 2, []float64{
		e.tunables.InitialCovariance, 0,
		0, driftVariance,
	})
}
