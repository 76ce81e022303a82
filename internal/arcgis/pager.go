package arcgis

import (
	"context"
	"iter"
	"net/url"

	"github.com/sells-group/gis-compliance/internal/model"
)

// Page is one non-empty page of query results.
type Page struct {
	Offset   int
	Features []model.Feature
}

// Pager walks the result pages of a single query. The offset always advances
// by PageSize; the walk ends after an empty page or a page shorter than
// PageSize. A Pager is single-use.
type Pager struct {
	client   *Client
	params   url.Values
	offset   int
	requests int
	done     bool
}

// Pager returns a pager for the given filters.
func (c *Client) Pager(filter AttributeFilter, spatial *SpatialFilter) *Pager {
	return &Pager{
		client: c,
		params: queryParams(filter, spatial),
	}
}

// Requests returns the number of page requests issued so far.
func (p *Pager) Requests() int {
	return p.requests
}

// Pages yields pages in request order. An error is yielded at most once and
// ends the sequence. Ranging over Pages again after it has ended yields
// nothing.
func (p *Pager) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for !p.done {
			offset := p.offset
			p.requests++
			features, err := p.client.fetchPage(ctx, p.params, offset)
			if err != nil {
				p.done = true
				yield(Page{Offset: offset}, err)
				return
			}

			if len(features) < PageSize {
				p.done = true
			} else {
				p.offset += PageSize
			}

			if len(features) == 0 {
				return
			}
			if !yield(Page{Offset: offset, Features: features}, nil) {
				p.done = true
				return
			}
		}
	}
}
