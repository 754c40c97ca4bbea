package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// queryScanLimit bounds a node-type scan. SQL requires a concrete LIMIT;
// this is the ceiling a single Cypher-subset query is allowed to touch.
const queryScanLimit = 10000

var (
	nodeScanPattern = regexp.MustCompile(`(?i)^MATCH\s*\(\s*(\w+)\s*:\s*(\w+)\s*\)\s*(?:WHERE\s+(.+?)\s+)?RETURN\s+(\w+)\s*$`)
	oneHopPattern   = regexp.MustCompile(`(?i)^MATCH\s*\(\s*(\w+)(?:\s*:\s*(\w+))?\s*\)\s*-\[\s*(\w+)\s*:\s*(\w+)\s*\]->\s*\(\s*(\w+)(?:\s*:\s*(\w+))?\s*\)\s*(?:WHERE\s+(.+?)\s+)?RETURN\s+(.+?)\s*$`)
	wherePattern    = regexp.MustCompile(`(?i)^(\w+)\.(\w+)\s*(=|CONTAINS)\s*'([^']*)'$`)
)

// predicate is a property filter resolved from a WHERE clause: match
// node.Properties[key] against value, either by equality or containment.
type predicate struct {
	alias    string
	key      string
	contains bool
	value    string
}

// Query executes the Cypher-subset spec.md describes: a typed node
// scan (`MATCH (n:Type) RETURN n`) or a one-hop typed relationship walk
// (`MATCH (n)-[r:TYPE]->(m) RETURN n,r,m`), each with an optional WHERE
// clause on property equality or string containment. Anything else
// fails with ErrUnsupportedQuery; a query that parses but references an
// identifier the pattern never bound fails with ErrQueryError. Neither
// case panics.
func Query(db GraphDB, cypherSubset string) (*model.QueryResult, error) {
	trimmed := strings.TrimSpace(cypherSubset)

	if m := nodeScanPattern.FindStringSubmatch(trimmed); m != nil {
		return runNodeScan(db, m)
	}
	if m := oneHopPattern.FindStringSubmatch(trimmed); m != nil {
		return runOneHop(db, m)
	}

	return nil, helper.NewError("parse cypher subset", helper.ErrUnsupportedQuery)
}

func runNodeScan(db GraphDB, m []string) (*model.QueryResult, error) {
	alias, nodeType, whereClause, returnVar := m[1], m[2], m[3], m[4]

	if returnVar != alias {
		return nil, unknownIdentifier(returnVar)
	}

	nodes, err := db.SelectNodesByType(model.NodeType(nodeType), queryScanLimit)
	if err != nil {
		return nil, helper.NewError("select nodes by type", err)
	}

	if whereClause != "" {
		pred, err := parseWhere(whereClause, alias)
		if err != nil {
			return nil, err
		}
		nodes = filterNodes(nodes, pred)
	}

	return &model.QueryResult{Nodes: nodes}, nil
}

func runOneHop(db GraphDB, m []string) (*model.QueryResult, error) {
	fromAlias, fromType := m[1], m[2]
	edgeAlias, edgeType := m[3], m[4]
	toAlias, toType := m[5], m[6]
	whereClause, returnList := m[7], m[8]

	bound := map[string]bool{fromAlias: true, edgeAlias: true, toAlias: true}
	for _, ident := range splitReturnList(returnList) {
		if !bound[ident] {
			return nil, unknownIdentifier(ident)
		}
	}

	edges, err := db.SelectEdgesByType(model.EdgeType(edgeType))
	if err != nil {
		return nil, helper.NewError("select edges by type", err)
	}

	var pred *predicate
	if whereClause != "" {
		p, err := parseWhere(whereClause, fromAlias, toAlias)
		if err != nil {
			return nil, err
		}
		pred = p
	}

	nodeSet := make(map[string]*model.GraphNode)
	var matchedEdges []*model.GraphEdge

	for _, e := range edges {
		from, err := db.SelectNode(e.FromID)
		if err != nil {
			continue
		}
		to, err := db.SelectNode(e.ToID)
		if err != nil {
			continue
		}
		if fromType != "" && string(from.Type) != fromType {
			continue
		}
		if toType != "" && string(to.Type) != toType {
			continue
		}
		if pred != nil && !satisfies(pred, fromAlias, from) && !satisfies(pred, toAlias, to) {
			continue
		}

		matchedEdges = append(matchedEdges, e)
		nodeSet[from.ID.String()] = from
		nodeSet[to.ID.String()] = to
	}

	nodes := make([]*model.GraphNode, 0, len(nodeSet))
	for _, n := range nodeSet {
		nodes = append(nodes, n)
	}

	return &model.QueryResult{Nodes: nodes, Edges: matchedEdges}, nil
}

func splitReturnList(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func parseWhere(clause string, validAliases ...string) (*predicate, error) {
	m := wherePattern.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		return nil, helper.NewError("parse where clause", fmt.Errorf("%w: %s", helper.ErrUnsupportedQuery, clause))
	}

	alias, key, op, value := m[1], m[2], m[3], m[4]

	ok := false
	for _, a := range validAliases {
		if a == alias {
			ok = true
			break
		}
	}
	if !ok {
		return nil, unknownIdentifier(alias)
	}

	return &predicate{alias: alias, key: key, contains: strings.EqualFold(op, "CONTAINS"), value: value}, nil
}

func filterNodes(nodes []*model.GraphNode, pred *predicate) []*model.GraphNode {
	out := make([]*model.GraphNode, 0, len(nodes))
	for _, n := range nodes {
		if satisfies(pred, pred.alias, n) {
			out = append(out, n)
		}
	}
	return out
}

func satisfies(pred *predicate, alias string, node *model.GraphNode) bool {
	if pred.alias != alias {
		return false
	}

	actual, ok := node.Properties[pred.key]
	if !ok {
		return false
	}
	str, ok := actual.(string)
	if !ok {
		return false
	}

	if pred.contains {
		return strings.Contains(str, pred.value)
	}
	return str == pred.value
}

func unknownIdentifier(ident string) error {
	return helper.NewError("resolve identifier", fmt.Errorf("%w: %s", helper.ErrQueryError, ident))
}
