// Package vad provides an energy based speech gate for captured segments.
// It scores frames with a smoothed RMS probability, flags segments with too few
// speech frames as misfires and maps probabilities to client status indicators.
package vad
