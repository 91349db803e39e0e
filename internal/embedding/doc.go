// Package embedding turns harvested items into vectors and uploads them in
// batches to a vector sink.
package embedding
