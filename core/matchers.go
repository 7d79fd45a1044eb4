package core

import (
	"sort"
	"strings"
	"time"
)

// EdgeProposal is a matcher's candidate relationship. The service turns
// proposals into stored edges; matchers themselves never write.
type EdgeProposal struct {
	FromIdentityID string
	ToIdentityID   string
	Type           EdgeType
	Confidence     float64
	Reason         string
}

// ExceptionProposal defers a decision the matcher refuses to guess.
type ExceptionProposal struct {
	Kind              ExceptionKind
	SubjectIdentityID string
	Candidates        []ExceptionCandidate
	Detail            string
}

// MatchProposals is the outcome of one matcher pass over a tenant's graph.
type MatchProposals struct {
	Edges      []EdgeProposal
	Exceptions []ExceptionProposal
}

func (p *MatchProposals) addEdge(edge EdgeProposal) {
	p.Edges = append(p.Edges, edge)
}

func (p *MatchProposals) addException(exception ExceptionProposal) {
	p.Exceptions = append(p.Exceptions, exception)
}

func (p *MatchProposals) merge(other MatchProposals) {
	p.Edges = append(p.Edges, other.Edges...)
	p.Exceptions = append(p.Exceptions, other.Exceptions...)
}

// edgeIndex answers "does this identity already have an edge of this type"
// in either direction without re-querying the store per identity.
type edgeIndex struct {
	outgoing map[string]map[EdgeType]int
	incoming map[string]map[EdgeType]int
}

func newEdgeIndex(edges []IdentityEdge) edgeIndex {
	index := edgeIndex{
		outgoing: map[string]map[EdgeType]int{},
		incoming: map[string]map[EdgeType]int{},
	}
	for _, edge := range edges {
		if index.outgoing[edge.FromIdentityID] == nil {
			index.outgoing[edge.FromIdentityID] = map[EdgeType]int{}
		}
		if index.incoming[edge.ToIdentityID] == nil {
			index.incoming[edge.ToIdentityID] = map[EdgeType]int{}
		}
		index.outgoing[edge.FromIdentityID][edge.Type]++
		index.incoming[edge.ToIdentityID][edge.Type]++
	}
	return index
}

func (i edgeIndex) hasOutgoing(identityID string, edgeType EdgeType) bool {
	return i.outgoing[identityID][edgeType] > 0
}

func (i edgeIndex) hasIncoming(identityID string, edgeType EdgeType) bool {
	return i.incoming[identityID][edgeType] > 0
}

// descriptorSimilarity scores two counterparty descriptors as the Jaccard
// overlap of their normalized token sets.
func descriptorSimilarity(a string, b string, stopTokens []string) float64 {
	tokensA := CounterpartyTokens(a, stopTokens)
	tokensB := CounterpartyTokens(b, stopTokens)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(tokensA))
	for _, token := range tokensA {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, token := range tokensB {
		setB[token] = struct{}{}
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func absMinor(amount int64) int64 {
	if amount < 0 {
		return -amount
	}
	return amount
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func withinDays(a time.Time, b time.Time, days int) bool {
	return absDuration(a.Sub(b)) <= time.Duration(days)*24*time.Hour
}

func sortFactsByTime(facts []IdentityFact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].OccurredAt.Equal(facts[j].OccurredAt) {
			return facts[i].Identity.ID < facts[j].Identity.ID
		}
		return facts[i].OccurredAt.Before(facts[j].OccurredAt)
	})
}

func sameCurrency(a string, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
