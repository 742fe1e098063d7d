// Package prediction provides the congestion predictor consumed by dispatch
// and the state simulator. A predictor turns a hospital feature vector into
// the expected ER admissions and ICU/ventilator demand. Predictors are
// optional collaborators: callers wrap them with WithFallback so a failing or
// slow model never blocks a dispatch.
package prediction
