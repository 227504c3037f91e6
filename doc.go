// Package tresor stores (path, key) -> value records behind a salted tag and
// serves reads from an in-process cache that mirrors the persistent store.
//
// Components:
//   - tag: deterministic tag derivation, tag = hex(SHA-1(path + "/" + key + salt))[:16].
//   - store.Store: the system of record (memstore, neo4jstore, pgstore).
//   - CacheStore: tag -> optional value over a provider.Provider, framed with
//     per-tag generations from a genstore.GenStore.
//   - expand + ResolveBatch: multidimensional batch reads into tensor.Tensor results.
//   - Service: Write / Read / ReadBatch / Warm glue used by the HTTP layer.
//
// Keys:
//
//	entry:<ns>:<tag>  - cached entry frames
//
// Write path:
//
//	persist (UpsertUser + UpsertEntry) -> CacheStore.Put  // under a per-tag lock
//
// The cache is only updated after the persistent write is confirmed.
package tresor
