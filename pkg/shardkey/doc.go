// Package shardkey computes composite routing keys ("shard keys") for
// documents entering a distributed search index, so that documents are
// consistently assigned to index partitions.
//
// A composite key has the form "<prefix>!<postfix>". The prefix is the
// concatenation of a document's prefix field values in a canonical sorted
// field order; the postfix is the document's otherwise-unique identifier.
// The downstream sharding layer hashes everything before the first
// separator, so the separator is a protocol constant and is never escaped
// or substituted.
//
// Usage follows a strict two-phase lifecycle:
//
//	cfg, err := shardkey.ParseOptions(opts) // once, at startup
//	err = cfg.Validate(catalog)             // once, fatal on failure
//	b := shardkey.NewBuilder(cfg)
//	res, err := b.Build(doc)                // per document, concurrently
//
// Configuration errors (ErrMissingField, ErrInvalidConfiguration) are
// fatal to startup and never reachable from the per-document path. Build
// failures (ErrInvalidFieldValue) reject the offending document only.
package shardkey
