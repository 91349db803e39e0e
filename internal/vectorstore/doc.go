// Package vectorstore holds the vector sink backends used by the embedding
// pipeline: qdrant, postgres, file, and memory.
package vectorstore
