// Package chunker splits long passages of extracted text into pieces small
// enough to embed and rank on their own.
//
// Upstream extraction often produces one record per page. Pages far larger
// than an embedding model's context dilute both similarity and keyword
// overlap, so ingest can split them first:
//
//	pieces := chunker.Split(pageText, 500)
//
// Token estimation uses a simple heuristic (chars/4). Cuts prefer paragraph
// breaks, then line breaks, then spaces.
package chunker
