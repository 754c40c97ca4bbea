package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed nodes.sql
var nodesSQL string

//go:embed edges.sql
var edgesSQL string

//go:embed trajectories.sql
var trajectoriesSQL string

//go:embed patterns.sql
var patternsSQL string

// Function lists for pg_proc verification.
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_document_by_hash",
	"select_all_documents",
	"search_documents",
	"update_document",
	"delete_document",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunk",
	"select_chunks_by_document",
	"select_chunks_by_section_descendant",
	"select_chunks_by_section_ancestor",
	"select_chunks_by_similarity",
	"delete_chunk",
	"update_chunk_embedding",
}

var NodesFunctions = []string{
	"init_nodes",
	"insert_node",
	"select_node",
	"select_nodes_by_type",
	"select_nodes_by_property",
	"update_node_properties",
	"delete_node",
}

var EdgesFunctions = []string{
	"init_edges",
	"upsert_edge",
	"select_edge",
	"select_edges_from",
	"select_edges_to",
	"select_edges_by_type",
	"delete_edge",
	"update_edge_weight",
	"traverse_bfs",
}

var TrajectoriesFunctions = []string{
	"init_trajectories",
	"begin_trajectory",
	"append_trajectory_step",
	"close_trajectory",
	"select_trajectory",
	"select_closed_trajectories",
	"mark_trajectories_consumed",
	"gc_consumed_trajectories",
}

var PatternsFunctions = []string{
	"init_patterns",
	"insert_pattern",
	"select_patterns_by_similarity",
	"update_pattern",
	"count_patterns",
	"select_pattern_to_evict",
	"delete_pattern",
}

// Init initializes db extensions.
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

func loadModule(db *sql.DB, force bool, functions []string, body string, label string) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", label, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(body)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", label, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created for %s", label)
	}

	log.Printf("SQL %s functions loaded successfully", label)
	return nil
}

func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadModule(db, force, DocumentsFunctions, documentsSQL, "documents")
}

func LoadChunksSql(db *sql.DB, force bool) error {
	return loadModule(db, force, ChunksFunctions, chunksSQL, "chunks")
}

func LoadNodesSql(db *sql.DB, force bool) error {
	return loadModule(db, force, NodesFunctions, nodesSQL, "nodes")
}

func LoadEdgesSql(db *sql.DB, force bool) error {
	return loadModule(db, force, EdgesFunctions, edgesSQL, "edges")
}

func LoadTrajectoriesSql(db *sql.DB, force bool) error {
	return loadModule(db, force, TrajectoriesFunctions, trajectoriesSQL, "trajectories")
}

func LoadPatternsSql(db *sql.DB, force bool) error {
	return loadModule(db, force, PatternsFunctions, patternsSQL, "patterns")
}

// LoadAllSql loads every SQL module in dependency order: nodes before
// edges (edges reference graph_nodes via foreign key), documents and
// chunks before nodes is not required but kept for readability.
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}
	if err := LoadNodesSql(db, force); err != nil {
		return err
	}
	if err := LoadChunksSql(db, force); err != nil {
		return err
	}
	if err := LoadEdgesSql(db, force); err != nil {
		return err
	}
	if err := LoadTrajectoriesSql(db, force); err != nil {
		return err
	}
	if err := LoadPatternsSql(db, force); err != nil {
		return err
	}
	return nil
}

// checkFunctions verifies that all required functions exist in the database.
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
