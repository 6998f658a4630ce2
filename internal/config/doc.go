// Package config loads chunkrank settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file in the working directory, then process environment variables.
// A minimal file looks like:
//
//	storage:
//	  backend: badger
//	  path: ~/.chunkrank/badger
//	embedding:
//	  provider: ollama
//	  host: http://localhost:11434/v1
//	rag:
//	  semantic_weight: 0.7
//	  keyword_weight: 0.3
//	  top_k: 5
package config
