// Package engine implements api.Engine on top of the executor and the
// persistence stores.
package engine
