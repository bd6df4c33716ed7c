// Package ranker turns a function signature into an ordered list of the most
// similar indexed functions.
//
// Results are ordered by descending similarity, then descending confidence,
// then the function key, so a query against an unchanged store always
// returns the same sequence.
//
// # Basic Usage
//
//	r := ranker.New(connector, provider, ranker.Config{Workers: 8}, logger)
//
//	matches, err := r.Query(ctx, sig, 10)
//
//	batch, err := r.QueryAll(ctx, types.ProgramRef{Path: "/bin/busybox"}, 5)
//	for _, fn := range batch.Functions {
//	    if err := batch.Errors[fn.Key()]; err != nil {
//	        continue
//	    }
//	    fmt.Println(fn, len(batch.Results[fn.Key()]))
//	}
package ranker
