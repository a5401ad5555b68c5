// Package monitor makes the particle cloud visible: arrow markers for
// subscribers, PNG plots of the run and an HTTP debug view.
package monitor
