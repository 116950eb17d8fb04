package servo

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// jacobianSVD holds the factorization of a (possibly drift-reduced)
// Jacobian plus its pseudoinverse, computed once per tick and reused by
// both the delta solve and the singularity analyzer.
type jacobianSVD struct {
	j    *mat.Dense // rows x N
	u    mat.Dense  // rows x min(rows, N)
	s    []float64  // singular values, descending
	v    mat.Dense  // N x min(rows, N)
	pinv mat.Dense  // N x rows, the pseudoinverse J+
}

// factorizeJacobian computes the (thin) SVD of j and its Moore-Penrose
// pseudoinverse J+ = V*Sigma^-1*U^T.
func factorizeJacobian(j *mat.Dense) (*jacobianSVD, error) {
	var svd mat.SVD
	ok := svd.Factorize(j, mat.SVDThin)
	if !ok {
		return nil, errors.New("singularity analyzer: SVD factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	_, k := v.Dims()

	var sigmaInv mat.Dense
	sigmaInv.ReuseAs(k, k)
	sigmaInv.Zero()
	for i, sv := range s {
		if sv > 1e-10 {
			sigmaInv.Set(i, i, 1/sv)
		}
	}

	var pinv mat.Dense
	pinv.Mul(&v, &sigmaInv)
	pinv.Mul(&pinv, u.T())

	return &jacobianSVD{j: j, u: u, s: s, v: v, pinv: pinv}, nil
}

// conditionNumber returns sigma_max/sigma_min of the factorized Jacobian.
func (svd *jacobianSVD) conditionNumber() float64 {
	if len(svd.s) == 0 {
		return 0
	}
	smallest := svd.s[len(svd.s)-1]
	if smallest <= 0 {
		return posInfFloat
	}
	return svd.s[0] / smallest
}

// lastUColumn returns the last column of U, the "direction toward
// singularity" before sign resolution.
func (svd *jacobianSVD) lastUColumn() []float64 {
	rows, cols := svd.u.Dims()
	col := make([]float64, rows)
	for i := 0; i < rows; i++ {
		col[i] = svd.u.At(i, cols-1)
	}
	return col
}

// solve computes Delta-theta = J+ * deltaX.
func (svd *jacobianSVD) solve(deltaX []float64) []float64 {
	dx := mat.NewVecDense(len(deltaX), deltaX)
	rows, _ := svd.pinv.Dims()
	out := mat.NewVecDense(rows, nil)
	out.MulVec(&svd.pinv, dx)
	result := make([]float64, rows)
	for i := range result {
		result[i] = out.AtVec(i)
	}
	return result
}

const posInfFloat = 1e18

// singularityProbe is the narrow slice of KinematicsProvider the
// singularity analyzer needs to run its perturb-and-recompute sign probe:
// set a trial joint configuration, get the Jacobian there, and be restored
// to the original configuration afterward.
type singularityProbe interface {
	SetPositions(positions []float64) error
	Jacobian() (*mat.Dense, error)
}

// singularityScale computes, given the already-factorized
// SVD of the (possibly drift-reduced) Jacobian at the current joint
// positions, the commanded deltaX in the same reduced space, and the
// current joint positions (so the sign-resolution probe can restore them),
// returns a velocity scale in [0,1] and the status it implies (NoWarning,
// DecelerateForSingularity, or HaltForSingularity).
func singularityScale(
	provider singularityProbe,
	currentPositions []float64,
	svd *jacobianSVD,
	deltaX []float64,
	lowerThreshold, hardThreshold float64,
) (float64, StatusCode, error) {
	kappa := svd.conditionNumber()

	direction := svd.lastUColumn()

	// Step 2: resolve the sign ambiguity of the last singular direction by
	// probing a small step along it and checking whether the condition
	// number improves or worsens.
	probeDelta := make([]float64, len(direction))
	for i, d := range direction {
		probeDelta[i] = d / 100
	}
	deltaThetaTest := svd.solve(probeDelta)

	testPositions := make([]float64, len(currentPositions))
	for i := range testPositions {
		testPositions[i] = currentPositions[i] + deltaThetaTest[i]
	}
	if err := provider.SetPositions(testPositions); err != nil {
		return 1, NoWarning, err
	}
	jTest, err := provider.Jacobian()
	// Always restore original positions, regardless of probe outcome.
	if restoreErr := provider.SetPositions(currentPositions); restoreErr != nil {
		return 1, NoWarning, restoreErr
	}
	if err != nil {
		return 1, NoWarning, err
	}
	svdTest, err := factorizeJacobian(jTest)
	if err != nil {
		return 1, NoWarning, err
	}
	kappaPrime := svdTest.conditionNumber()
	if kappaPrime > kappa {
		for i := range direction {
			direction[i] = -direction[i]
		}
	}

	d := dot(direction, deltaX)
	if d <= 0 {
		// Moving away from the singularity.
		return 1, NoWarning, nil
	}

	switch {
	case kappa <= lowerThreshold:
		return 1, NoWarning, nil
	case kappa < hardThreshold:
		scale := 1 - (kappa-lowerThreshold)/(hardThreshold-lowerThreshold)
		return scale, DecelerateForSingularity, nil
	default:
		return 0, HaltForSingularity, nil
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
