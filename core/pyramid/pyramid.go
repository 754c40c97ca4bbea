// Package pyramid implements the strategic-alignment overlay: a typed
// subgraph of PyramidItem nodes connected child->parent by ALIGNS_TO
// edges, with a cosine/graph-coherence/ancestor-chain alignment score
// and drift severity derived from it. It never touches the vector
// store beyond embedding item descriptions for the directFit term.
package pyramid

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// DB is the persistence surface the overlay needs, matching
// database.PyramidDBHandler's exported methods.
type DB interface {
	InsertPyramidItem(item *model.PyramidItem) error
	SelectPyramidItem(id uuid.UUID) (*model.PyramidItem, error)
	SelectPyramidItemsByOrg(orgID string, limit int) ([]*model.PyramidItem, error)
	UpdatePyramidAlignmentScore(id uuid.UUID, score float64) (*model.PyramidItem, error)
	UpdatePyramidItem(item *model.PyramidItem) (*model.PyramidItem, error)
	DeletePyramidItem(id uuid.UUID) (bool, error)
	SelectPyramidChildren(id uuid.UUID) ([]*model.PyramidItem, error)
	SelectPyramidAncestors(id uuid.UUID, maxDepth int) ([]*model.PyramidItem, error)
	LinkDocumentToPyramidItem(documentNodeID uuid.UUID, itemID uuid.UUID, weight float64) error
	CountSupportingDocuments(id uuid.UUID) (int, error)
}

// EmbedFunc produces an embedding for a piece of text, used to score
// directFit between an item's description and its parent's.
type EmbedFunc func(text string) ([]float32, error)

// Alignment is the full scoring breakdown for one item, returned by
// CalculateAlignment so callers can see the terms, not just the blend.
type Alignment struct {
	ItemID         uuid.UUID             `json:"item_id"`
	DirectFit      float64               `json:"direct_fit"`
	GraphCoherence float64               `json:"graph_coherence"`
	AncestorChain  float64               `json:"ancestor_chain"`
	Score          float64               `json:"alignment_score"`
	Bucket         model.AlignmentBucket `json:"bucket"`
	DriftScore     float64               `json:"drift_score"`
	DriftSeverity  model.DriftSeverity   `json:"drift_severity"`
}

const (
	directFitWeight      = 0.5
	graphCoherenceWeight = 0.2
	ancestorChainWeight  = 0.3
	graphCoherenceCap    = 5.0
)

// Overlay is the pyramid alignment engine over a graph-backed DB.
type Overlay struct {
	db    DB
	embed EmbedFunc
}

// NewOverlay builds an Overlay. embed may be nil; CalculateAlignment
// then treats directFit as 1 for every item with a parent too, the
// same degenerate value used for a mission with no parent at all —
// callers without an embedding provider still get graphCoherence and
// ancestorChain signal rather than an error.
func NewOverlay(db DB, embed EmbedFunc) *Overlay {
	return &Overlay{db: db, embed: embed}
}

// CreateEntity validates level ordering against parent (mission has no
// parent; every other level requires a parent whose level is strictly
// less), inserts the item, creates the child->parent ALIGNS_TO edge,
// and attaches any referenced documents via SUPPORTS edges.
func (o *Overlay) CreateEntity(item *model.PyramidItem) (*model.PyramidItem, error) {
	if item.Level == model.LevelMission {
		if item.ParentID != nil {
			return nil, helper.NewError("create pyramid entity", fmt.Errorf("%w: mission may not have a parent", helper.ErrInvalidArgument))
		}
	} else {
		if item.ParentID == nil {
			return nil, helper.NewError("create pyramid entity", fmt.Errorf("%w: level %s requires a parent", helper.ErrInvalidArgument, item.Level))
		}
		parent, err := o.db.SelectPyramidItem(*item.ParentID)
		if err != nil {
			return nil, helper.NewError("create pyramid entity: load parent", err)
		}
		if parent.Level >= item.Level {
			return nil, helper.NewError("create pyramid entity", fmt.Errorf("%w: parent level %s is not strictly above child level %s", helper.ErrInvalidArgument, parent.Level, item.Level))
		}
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := o.db.InsertPyramidItem(item); err != nil {
		return nil, helper.NewError("create pyramid entity", err)
	}

	for _, docID := range item.DocumentIDs {
		if err := o.db.LinkDocumentToPyramidItem(docID, item.ID, 1.0); err != nil {
			return nil, helper.NewError("create pyramid entity: link document", err)
		}
	}

	return item, nil
}

// GetEntity retrieves one item by id.
func (o *Overlay) GetEntity(id uuid.UUID) (*model.PyramidItem, error) {
	item, err := o.db.SelectPyramidItem(id)
	if err != nil {
		return nil, helper.NewError("get pyramid entity", err)
	}
	return item, nil
}

// UpdateEntity rewrites name, description, and attached documents for
// an existing item, linking any newly referenced documents. Level and
// parent are immutable after creation.
func (o *Overlay) UpdateEntity(item *model.PyramidItem) (*model.PyramidItem, error) {
	updated, err := o.db.UpdatePyramidItem(item)
	if err != nil {
		return nil, helper.NewError("update pyramid entity", err)
	}
	for _, docID := range item.DocumentIDs {
		if err := o.db.LinkDocumentToPyramidItem(docID, item.ID, 1.0); err != nil {
			return nil, helper.NewError("update pyramid entity: link document", err)
		}
	}
	return updated, nil
}

// DeleteEntity removes an item and its edges (cascading to any
// children's now-broken ALIGNS_TO edge along with it).
func (o *Overlay) DeleteEntity(id uuid.UUID) (bool, error) {
	deleted, err := o.db.DeletePyramidItem(id)
	if err != nil {
		return false, helper.NewError("delete pyramid entity", err)
	}
	return deleted, nil
}

// GetPyramidTree returns every item for an organization, ordered by
// level (mission first) then by creation time within a level.
func (o *Overlay) GetPyramidTree(orgID string) ([]*model.PyramidItem, error) {
	items, err := o.db.SelectPyramidItemsByOrg(orgID, 0)
	if err != nil {
		return nil, helper.NewError("get pyramid tree", err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Level != items[j].Level {
			return items[i].Level < items[j].Level
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// GetPathToMission walks ALIGNS_TO upward from id. An unknown id yields
// an empty traversal from the BFS function itself (nothing reachable),
// so this returns an empty slice rather than an error in that case.
func (o *Overlay) GetPathToMission(id uuid.UUID) ([]*model.PyramidItem, error) {
	ancestors, err := o.db.SelectPyramidAncestors(id, 8)
	if err != nil {
		return nil, helper.NewError("get path to mission", err)
	}
	if ancestors == nil {
		return []*model.PyramidItem{}, nil
	}
	return ancestors, nil
}

// GetChildren performs a downward BFS restricted to ALIGNS_TO edges, up
// to depth hops. One-hop lookups are supplied by the DB; the overlay
// expands them level by level the way core/graph's BFS expands
// neighbors, just restricted to the single ALIGNS_TO relation and the
// reversed (parent->child) direction.
func (o *Overlay) GetChildren(id uuid.UUID, depth int) ([]*model.PyramidItem, error) {
	if depth <= 0 {
		return []*model.PyramidItem{}, nil
	}

	visited := map[uuid.UUID]bool{id: true}
	frontier := []uuid.UUID{id}
	var all []*model.PyramidItem

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []uuid.UUID
		for _, parentID := range frontier {
			children, err := o.db.SelectPyramidChildren(parentID)
			if err != nil {
				return nil, helper.NewError("get children", err)
			}
			for _, c := range children {
				if visited[c.ID] {
					continue
				}
				visited[c.ID] = true
				all = append(all, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}

	return all, nil
}

// CalculateAlignment computes the full alignment breakdown for item e:
//   - directFit: cosine(embedding(description(e)), embedding(description(parent(e)))),
//     or 1 if e has no parent (mission) or no embedder is configured.
//   - graphCoherence: min(1, count of SUPPORTS edges linking documents
//     into e (document->item, i.e. incoming to e) / 5).
//   - ancestorChain: geometric mean of directFit along the path to mission.
//   - score = 0.5*directFit + 0.2*graphCoherence + 0.3*ancestorChain, clamped [0,1].
func (o *Overlay) CalculateAlignment(id uuid.UUID) (*Alignment, error) {
	item, err := o.GetEntity(id)
	if err != nil {
		return nil, err
	}

	directFit, err := o.directFit(item)
	if err != nil {
		return nil, helper.NewError("calculate alignment: direct fit", err)
	}

	supportCount, err := o.db.CountSupportingDocuments(item.ID)
	if err != nil {
		return nil, helper.NewError("calculate alignment: support count", err)
	}
	graphCoherence := math.Min(1, float64(supportCount)/graphCoherenceCap)

	ancestorChain, err := o.ancestorChain(item)
	if err != nil {
		return nil, helper.NewError("calculate alignment: ancestor chain", err)
	}

	score := directFitWeight*directFit + graphCoherenceWeight*graphCoherence + ancestorChainWeight*ancestorChain
	score = clamp01(score)

	if _, err := o.db.UpdatePyramidAlignmentScore(item.ID, score); err != nil {
		return nil, helper.NewError("calculate alignment: persist score", err)
	}

	drift := 1 - score
	return &Alignment{
		ItemID:         item.ID,
		DirectFit:      directFit,
		GraphCoherence: graphCoherence,
		AncestorChain:  ancestorChain,
		Score:          score,
		Bucket:         model.BucketForScore(score),
		DriftScore:     drift,
		DriftSeverity:  model.SeverityForDrift(drift),
	}, nil
}

// directFit embeds e's and its parent's descriptions and scores their
// cosine similarity. Defined as 1 when e has no parent or no embedder
// is configured.
func (o *Overlay) directFit(item *model.PyramidItem) (float64, error) {
	if item.ParentID == nil || o.embed == nil {
		return 1, nil
	}

	parent, err := o.GetEntity(*item.ParentID)
	if err != nil {
		return 0, err
	}

	childEmbedding, err := o.embed(item.Description)
	if err != nil {
		return 0, err
	}
	parentEmbedding, err := o.embed(parent.Description)
	if err != nil {
		return 0, err
	}

	return cosineSimilarity(childEmbedding, parentEmbedding), nil
}

// ancestorChain is the geometric mean of directFit computed pairwise
// along the path from e up to (but not including re-scoring) mission.
func (o *Overlay) ancestorChain(item *model.PyramidItem) (float64, error) {
	path, err := o.GetPathToMission(item.ID)
	if err != nil {
		return 0, err
	}
	if len(path) == 0 {
		return 1, nil
	}

	chain := append([]*model.PyramidItem{item}, path...)

	product := 1.0
	terms := 0
	for i := 0; i+1 < len(chain); i++ {
		fit, err := o.directFit(chain[i])
		if err != nil {
			return 0, err
		}
		product *= fit
		terms++
	}
	if terms == 0 {
		return 1, nil
	}
	return math.Pow(product, 1/float64(terms)), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		normA += float64(x) * float64(x)
	}
	for _, x := range b {
		normB += float64(x) * float64(x)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
