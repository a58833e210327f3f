package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// textFields are the fields a search term is matched against.
var textFields = []string{"content", "handle", "display_name"}

// buildIndexMapping creates the Bleve mapping for item documents.
//
// Every field uses the keyword analyzer: one term per field value. Substring
// search is a regexp over that single term, which mirrors a plain
// strings.Contains on the lower-cased value.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()

	keywordField := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = store
		fm.IncludeInAll = false
		return fm
	}

	docMapping.AddFieldMappingsAt("id", keywordField(true))
	docMapping.AddFieldMappingsAt("owner_id", keywordField(false))
	docMapping.AddFieldMappingsAt("external_id", keywordField(true))
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, keywordField(false))
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
