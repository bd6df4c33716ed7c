// Package storage provides the similarity stores that back function queries.
//
// A store holds executables and one feature vector per function. The
// embedded store keeps everything in a single SQLite file; the networked
// store lives in the postgres subpackage. Both satisfy SimilarityStore.
//
// # Database Schema
//
// Tables:
//   - executables: indexed programs (md5, name, path, architecture, compiler)
//   - functions: one signature per function (name, address, vector, feature_count)
//   - store_metadata: key/value settings such as the similarity measure
//   - schema_version: applied migrations
//
// # Scoring
//
// Similarity is the cosine similarity of the two vectors clamped to [0, 1].
// Confidence is the similarity scaled by min(fa, fb)/max(fa, fb) where fa and
// fb are the non-zero feature counts. Results are ordered by similarity,
// then confidence, then function key, so equal inputs always produce equal
// output.
//
// Builds tagged sqlite_vec use the sqlite-vec extension and score in SQL.
// The default pure Go build scores in Go with a bounded heap.
//
// # Basic Usage
//
//	store := storage.NewEmbeddedStore("/data/corpus.db", storage.EmbeddedOptions{})
//	if err := store.Open(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	matches, err := store.NearestNeighbors(ctx, sig, 10)
//
// # Transactions
//
// Bulk loads can run inside a transaction:
//
//	err := store.WithTx(ctx, func(tx storage.Ingester) error {
//	    if err := tx.UpsertExecutable(ctx, exe); err != nil {
//	        return err
//	    }
//	    fn.ExecutableID = exe.ID
//	    return tx.UpsertFunction(ctx, fn)
//	})
package storage
