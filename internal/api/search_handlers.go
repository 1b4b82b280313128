package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search books and annotations",
		Description: "Full-text search over one partition: your own library by default, or a spectated one via the owner parameter. Results never cross partitions.",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput carries the search query parameters.
type SearchInput struct {
	Authorization string   `header:"Authorization"`
	Owner         string   `query:"owner" doc:"Partition to search; defaults to your own library"`
	Query         string   `query:"q" doc:"Search text"`
	Types         []string `query:"type" enum:"book,annotation" doc:"Restrict to document types"`
	ContentHash   string   `query:"content_hash" doc:"Restrict annotations to one book"`
	Colors        []string `query:"color" enum:"yellow,green,blue,pink" doc:"Filter annotations by highlight color"`
	MinYear       int      `query:"min_year" minimum:"0" doc:"Minimum publication year"`
	MaxYear       int      `query:"max_year" minimum:"0" doc:"Maximum publication year"`
	Limit         int      `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
	Offset        int      `query:"offset" minimum:"0" doc:"Page offset"`
	SortBy        string   `query:"sort" enum:"relevance,title,author,recent" default:"relevance" doc:"Sort key"`
	SortOrder     string   `query:"order" enum:"asc,desc" default:"desc" doc:"Sort direction"`
	Highlight     bool     `query:"highlight" default:"true" doc:"Include match highlighting"`
}

// SearchOutput wraps search results for huma.
type SearchOutput struct {
	Body *search.SearchResult
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	owner, err := s.resolveOwner(input.Authorization, input.Owner)
	if err != nil {
		return nil, err
	}

	params := search.DefaultSearchParams()
	params.Owner = owner
	params.Query = input.Query
	params.Types = input.Types
	params.ContentHash = input.ContentHash
	params.Colors = input.Colors
	params.MinYear = input.MinYear
	params.MaxYear = input.MaxYear
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	params.Offset = input.Offset
	if input.SortBy != "" {
		params.SortBy = input.SortBy
	}
	if input.SortOrder != "" {
		params.SortOrder = input.SortOrder
	}
	params.Highlight = input.Highlight

	result, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: result}, nil
}
