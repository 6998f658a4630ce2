// Package ingest loads chunk records produced by an extraction step and
// writes them to a chunk store.
//
// Records arrive as JSON, either {"pages": [...]}, {"chunks": [...]} or a
// bare array. Each record may spell its fields page/page_number and
// content/text. Records without a chunk_id get a random UUID. When asked to,
// the Ingester embeds records that arrived without a vector, running batches
// on an ants worker pool.
package ingest
