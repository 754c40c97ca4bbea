package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"

	memory "github.com/siherrmann/knowledge"
)

const sampleContent = `This is a sample document about graph databases.

Graph databases are designed to store and query data with complex relationships.
They use nodes to represent entities and edges to represent relationships between them.

PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems.
The ltree extension provides hierarchical tree structures, while pgvector enables vector similarity search.

Combining these features allows for hybrid retrieval strategies that leverage both semantic similarity
and graph structure for more sophisticated information retrieval.`

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	cfg := helper.DefaultMemoryConfig()
	cfg.Database = helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	m, err := memory.New(&cfg)
	if err != nil {
		log.Fatalf("Failed to create memory: %v", err)
	}
	defer m.Close()

	doc := &model.Document{
		Title:  "Introduction to Graph Databases",
		Source: "basic_example",
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "graph databases",
		},
	}

	fmt.Println("Ingesting document...")
	inserted, err := m.AddDocument(sampleContent, model.DocumentTypeText, doc)
	if err != nil {
		log.Fatalf("Failed to add document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", inserted.RID)

	queryText := "What are graph databases?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	cfgQuery := model.DefaultQueryConfig()
	cfgQuery.TopK = 5
	cfgQuery.SimilarityThreshold = 0.0

	results, err := m.Search(context.Background(), queryText, &cfgQuery)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Combined score: %.4f (vector %.4f, graph %.4f)\n", result.CombinedScore, result.VectorScore, result.GraphScore)
		fmt.Printf("Content: %s\n", result.Content)
		fmt.Printf("Method: %s\n", result.RetrievalMethod)
	}

	fmt.Println("\nBasic example completed successfully!")
}
