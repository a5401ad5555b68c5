// Package particles implements the Monte Carlo localisation filter: a
// fixed-size set of weighted pose hypotheses, a multiplicative-noise motion
// model, a likelihood-field sensor model that searches an occupancy grid
// along each beam, and a rank-biased reseed step.
//
// Responsibilities: particle lifecycle (Init/Start/Stop/Reset), Predict,
// Correct, Normalize, Reseed and pose estimation.
// Key types: Filter, Particle, RangeScan, Config.
//
// A Filter is not safe for concurrent use; the owning controller must
// serialise calls. Separate filters share no state and may run in
// parallel.
package particles
