package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"

	memory "github.com/siherrmann/knowledge"
)

const sampleContent1 = `This is a comprehensive document about graph databases and their applications.

Graph databases are designed to store and query data with complex relationships.
They use nodes to represent entities and edges to represent relationships between them.

PostgreSQL with extensions like ltree and pgvector can be used to build powerful graph-based systems.
The ltree extension provides hierarchical tree structures, while pgvector enables vector similarity search.

Combining these features allows for hybrid retrieval strategies that leverage both semantic similarity
and graph structure for more sophisticated information retrieval.`

const sampleContent2 = `Machine learning is transforming how we process and retrieve information.

Vector embeddings capture semantic meaning of text, enabling similarity-based search.
Neural networks can learn representations that understand context and relationships.

Modern retrieval systems combine traditional database indexing with machine learning models
to provide more intelligent and context-aware search capabilities.`

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

	doc1 := &model.Document{
		Title:  "Introduction to Graph Databases",
		Source: "advanced_example",
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "graph databases",
		},
	}
	doc2 := &model.Document{
		Title:  "Machine Learning for Information Retrieval",
		Source: "advanced_example",
		Metadata: model.Metadata{
			"author": "Example Author",
			"topic":  "machine learning",
		},
	}

	fmt.Println("=== Ingesting Documents ===")
	doc1, err = m.AddDocument(sampleContent1, model.DocumentTypeText, doc1)
	if err != nil {
		log.Fatalf("Failed to add document 1: %v", err)
	}
	fmt.Printf("Document 1 '%s' (RID: %s)\n", doc1.Title, doc1.RID)

	doc2, err = m.AddDocument(sampleContent2, model.DocumentTypeText, doc2)
	if err != nil {
		log.Fatalf("Failed to add document 2: %v", err)
	}
	fmt.Printf("Document 2 '%s' (RID: %s)\n", doc2.Title, doc2.RID)

	queryText := "What are graph databases?"
	ctx := context.Background()

	// 1. Vector-only search (vectorWeight=1, no graph expansion)
	fmt.Println("\n=== 1. Vector-Only Search ===")
	vectorResults, err := m.VectorSearch(queryText, &model.QueryConfig{TopK: 3, VectorWeight: 1.0})
	if err != nil {
		log.Fatalf("Vector search failed: %v", err)
	}
	printResults("Vector Search", vectorResults)

	// 2. Hybrid search with custom weights and related-node expansion
	fmt.Println("\n=== 2. Hybrid Search (Custom Weights) ===")
	hybridConfig := model.DefaultQueryConfig()
	hybridConfig.TopK = 5
	hybridConfig.VectorWeight = 0.5
	hybridConfig.IncludeRelated = true
	hybridConfig.GraphDepth = 1
	hybridResults, err := m.Search(ctx, queryText, &hybridConfig)
	if err != nil {
		log.Fatalf("Hybrid search failed: %v", err)
	}
	printResults("Hybrid Search", hybridResults)

	// 3. Document-scoped search
	fmt.Println("\n=== 3. Document-Scoped Search ===")
	fmt.Println("Searching only within 'Introduction to Graph Databases'...")
	docScopedConfig := model.DefaultQueryConfig()
	docScopedConfig.TopK = 3
	docScopedConfig.DocumentRIDs = []uuid.UUID{doc1.RID}
	docScopedResults, err := m.Search(ctx, queryText, &docScopedConfig)
	if err != nil {
		log.Fatalf("Document-scoped search failed: %v", err)
	}
	printResults("Document-Scoped Search", docScopedResults)

	fmt.Println("\nSearching only within 'Machine Learning for Information Retrieval'...")
	mlQuery := "How does machine learning help with search?"
	mlScopedConfig := model.DefaultQueryConfig()
	mlScopedConfig.TopK = 3
	mlScopedConfig.DocumentRIDs = []uuid.UUID{doc2.RID}
	mlScopedResults, err := m.Search(ctx, mlQuery, &mlScopedConfig)
	if err != nil {
		log.Fatalf("ML document-scoped search failed: %v", err)
	}
	printResults("ML Document Search", mlScopedResults)

	// 4. Graph traversal from the top hybrid hit
	if len(hybridResults) > 0 {
		fmt.Println("\n=== 4. Graph Traversal (FindRelated) ===")
		sourceNodeID := hybridResults[0].NodeID
		fmt.Printf("Starting traversal from node: %s\n", sourceNodeID)

		related, err := m.FindRelated(sourceNodeID, 2, nil)
		if err != nil {
			log.Printf("FindRelated failed: %v", err)
		} else {
			fmt.Printf("Found %d related nodes\n", len(related))
			for i, r := range related {
				if i >= 3 {
					break
				}
				fmt.Printf("  - Depth %d: node %s (path length %d)\n", r.Depth, r.NodeID, len(r.Path))
			}
		}
	}

	// 5. Explicit relationship
	fmt.Println("\n=== 5. Add Relationship ===")
	if err := m.AddRelationship(doc1.RID, doc2.RID, model.EdgeTypeRelatesTo, model.Metadata{"note": "both about information retrieval"}); err != nil {
		log.Printf("AddRelationship failed: %v", err)
	} else {
		fmt.Println("Linked doc1 -> doc2 via RELATES_TO")
	}

	// 6. Stats snapshot
	fmt.Println("\n=== 6. Stats ===")
	stats, err := m.GetStats()
	if err != nil {
		log.Printf("GetStats failed: %v", err)
	} else {
		fmt.Printf("Documents: %d, Chunks: %d, Nodes: %d, Edges: %d, Patterns: %d\n",
			stats.DocumentCount, stats.ChunkCount, stats.NodeCount, stats.EdgeCount, stats.PatternCount)
	}

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("- Vector-only search")
	fmt.Println("- Hybrid search with custom vector/graph weights")
	fmt.Println("- Document-scoped search (filter by document RID)")
	fmt.Println("- Graph traversal (FindRelated)")
	fmt.Println("- Explicit relationship creation")
	fmt.Println("- Aggregated stats snapshot")
}

func printResults(title string, results []*model.RetrievalResult) {
	fmt.Printf("\n%s - Found %d results:\n", title, len(results))
	for i, result := range results {
		if i >= 3 {
			break
		}
		fmt.Printf("\n  Result %d:\n", i+1)
		fmt.Printf("    Combined: %.4f (vector %.4f, graph %.4f)\n", result.CombinedScore, result.VectorScore, result.GraphScore)
		fmt.Printf("    Method: %s\n", result.RetrievalMethod)
		content := result.Content
		if len(content) > 80 {
			content = content[:80] + "..."
		}
		fmt.Printf("    Content: %s\n", content)
	}
}
