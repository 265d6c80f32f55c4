// Package rag turns prompts into context fragments and documents into
// searchable chunks.
//
// Retriever.Search is advisory: any failure while embedding the query or
// querying the index is logged and yields no fragments, so retrieval can
// never fail a chat request. Chunk, Extract and the hash embedder are the
// ingestion side used when documents are uploaded.
package rag
