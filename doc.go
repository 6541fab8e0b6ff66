// Package filtermate provides a multi-backend filter engine for geospatial
// feature collections: typed filter expressions are rendered to the dialect
// of the collection's backend, combined with the prior filter through a
// rewrite optimizer, executed with retry, and tracked in a per-collection
// undo/redo history.
//
// The package simplifies filtering heterogeneous collections by:
//   - Abstracting execution behind per-backend strategies (PostGIS server,
//     embedded DuckDB file, generic in-process feature store)
//   - Rewriting combined expressions so a new filter step reuses the work of
//     the prior one (result-view reuse, identifier-list reordering, range
//     conversion)
//   - Recording every confirmed application in a bounded linear history with
//     undo and redo
//   - Persisting history snapshots as compressed msgpack
//
// # Quick Start
//
// Filter an in-process collection in under 30 lines:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/paulmach/orb"
//
//	    filtermate "github.com/sducournau/filter-mate-sub019"
//	    "github.com/sducournau/filter-mate-sub019/backend"
//	    "github.com/sducournau/filter-mate-sub019/catalog"
//	    "github.com/sducournau/filter-mate-sub019/expr"
//	)
//
//	func main() {
//	    provider := catalog.NewStaticProvider()
//	    provider.Add(&catalog.Collection{
//	        ID: "parcels", IDColumn: "fid", GeomColumn: "geom",
//	        Kind: catalog.KindMemory,
//	    })
//
//	    store := backend.NewMemory(nil)
//	    store.Load("parcels", []backend.Feature{
//	        {ID: 1, Geometry: orb.Point{1, 1}, Attrs: map[string]any{"zone": "A"}},
//	        {ID: 2, Geometry: orb.Point{9, 9}, Attrs: map[string]any{"zone": "B"}},
//	    })
//
//	    engine, err := filtermate.New(filtermate.Config{
//	        Catalog:    provider,
//	        Strategies: []backend.Strategy{store},
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer engine.Close(context.Background())
//
//	    res, err := engine.Apply(context.Background(), "parcels",
//	        expr.NewAttribute("zone = 'A'"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("matches:", res.Count)
//	}
//
// # Backends
//
// Each collection declares its backend kind in catalog metadata. The server
// backend materializes results into named views so follow-up filter steps can
// be re-targeted at the reduced row set; the embedded backend stages results
// in temporary tables with a spatial index; the generic backend evaluates
// filters directly over features held in memory.
//
// # History
//
// Every confirmed application pushes a state onto the collection's history.
// Undo and redo re-execute recorded states; applying after an undo discards
// the redoable tail. Histories are bounded and can be snapshotted through
// SaveHistory and LoadHistory.
package filtermate
