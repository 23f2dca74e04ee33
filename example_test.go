package imgrank_test

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/imgrank"
	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/container"
	"github.com/hupe1980/imgrank/tensor"
)

func put(store blobstore.BlobStore, name string, ids []string, rows [][]float64) {
	m, err := tensor.FromRows(rows)
	if err != nil {
		log.Fatal(err)
	}
	var buf bytes.Buffer
	if err := container.Write(&buf, &container.File{Names: ids, Features: container.ArrayFromMatrix(m)}); err != nil {
		log.Fatal(err)
	}
	if err := store.Put(context.Background(), name, buf.Bytes()); err != nil {
		log.Fatal(err)
	}
}

// ExampleRun ranks a three-image collection against two queries.
func ExampleRun() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	put(store, "collection.imgf", []string{"A.jpg", "B.jpg", "C.jpg"}, [][]float64{{1, 0}, {0, 1}, {1, 1}})
	put(store, "query.imgf", []string{"1_1.jpg", "2_1.jpg"}, [][]float64{{2, 0}, {0, 2}})

	cfg := imgrank.DefaultConfig()
	cfg.Collection = "collection.imgf"
	cfg.Query = "query.imgf"
	cfg.Output = "run.txt"
	cfg.Search.K = 1

	if _, err := imgrank.Run(ctx, cfg, imgrank.WithStore(store)); err != nil {
		log.Fatal(err)
	}

	out, _ := blobstore.ReadAll(ctx, store, "run.txt")
	fmt.Print(string(out))
	// Output:
	// 1	Q0	A	1	1.0	CUR
	// 2	Q0	B	1	1.0	CUR
}

// ExampleBasicMetricsCollector shows the counters a run leaves behind.
func ExampleBasicMetricsCollector() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	put(store, "c.imgf", []string{"A.jpg", "B.jpg"}, [][]float64{{0}, {1}})
	put(store, "q.imgf", []string{"1_1.jpg"}, [][]float64{{1}})

	cfg := imgrank.DefaultConfig()
	cfg.Collection, cfg.Query, cfg.Output = "c.imgf", "q.imgf", "run.txt"
	cfg.Search.Metric = "euclidean"
	cfg.Search.K = 2

	metrics := &imgrank.BasicMetricsCollector{}
	if _, err := imgrank.Run(ctx, cfg, imgrank.WithStore(store), imgrank.WithMetricsCollector(metrics)); err != nil {
		log.Fatal(err)
	}

	stats := metrics.GetStats()
	fmt.Println(stats.LoadRows, stats.SearchQueries, stats.RankFileRecords)
	// Output: 3 1 2
}
