package handler

// Pagination describes one page of a paginated listing for templates.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	BaseURL    string
	Query      string
}

// BuildPagination computes pagination state, clamping page into the valid
// range. A total of zero yields a single empty page.
func BuildPagination(page, total, perPage int, baseURL, query string) Pagination {
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
		BaseURL:    baseURL,
		Query:      query,
	}
}

// Offset returns the query offset for the current page.
func (p Pagination) Offset() int64 {
	return int64((p.Page - 1) * p.PerPage)
}
