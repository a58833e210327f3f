package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// ErrUnsupportedTerm is returned for a blank term, which every item matches.
var ErrUnsupportedTerm = errors.New("search term is blank")

// ErrUnhealthy is returned when the index may be missing documents.
var ErrUnhealthy = errors.New("search index is unhealthy")

const candidatePageSize = 1000

// Candidates returns the ids of ownerID's items whose content, handle or
// display name contains term, ignoring case. The result is a superset of the
// exact matches; an empty term is rejected because every item matches.
func (s *SearchIndex) Candidates(ctx context.Context, ownerID, term string) ([]string, error) {
	if !s.Healthy() {
		return nil, ErrUnhealthy
	}

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, ErrUnsupportedTerm
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := buildCandidateQuery(ownerID, term)

	var ids []string
	for offset := 0; ; offset += candidatePageSize {
		req := bleve.NewSearchRequestOptions(q, candidatePageSize, offset, false)
		req.SortBy([]string{"_id"})

		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("execute search: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < candidatePageSize {
			break
		}
	}
	return ids, nil
}

// buildCandidateQuery matches owner_id exactly and any text field containing
// term. Field values are whole strings that may span lines, so the pattern
// sets the s flag to let '.' cross newlines.
func buildCandidateQuery(ownerID, term string) query.Query {
	owner := bleve.NewTermQuery(ownerID)
	owner.SetField("owner_id")

	pattern := "(?s).*" + regexp.QuoteMeta(term) + ".*"

	text := make([]query.Query, 0, len(textFields))
	for _, f := range textFields {
		rq := bleve.NewRegexpQuery(pattern)
		rq.SetField(f)
		text = append(text, rq)
	}

	return bleve.NewConjunctionQuery(owner, bleve.NewDisjunctionQuery(text...))
}
