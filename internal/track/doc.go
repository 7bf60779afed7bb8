// Package track owns the track estimation engine.
//
// Responsibilities: the measurement/track data model, the Estimator
// strategy contract, the two estimators (Kalman filter and
// instantaneous velocity) and the Manager that binds an estimator to a
// track line and assigns track identifiers.
// Key types: Measurement, Track, Estimator, Manager.
//
// Dependency rule: track depends on nothing else in this module. No
// transport, persistence or SQL code is allowed in this package.
package track
