package gmm

import "errors"

var (
	// InvalidShapeErr signals a dimensionality mismatch between the data and the model.
	InvalidShapeErr = errors.New("invalid shape")
	// SingularCovarianceErr signals a covariance matrix that could not be
	// factorized even after regularization.
	SingularCovarianceErr = errors.New("singular covariance")
	// ConfigurationErr signals invalid construction parameters.
	ConfigurationErr = errors.New("invalid configuration")
)
