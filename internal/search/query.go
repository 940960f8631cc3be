package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const maxPageSize = 100

// Query filters the submission projection. Empty fields do not filter.
type Query struct {
	Text       string `json:"text,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
	Status     string `json:"status,omitempty"`
	Type       string `json:"applicationType,omitempty"`
	UnpaidOnly bool   `json:"unpaidOnly,omitempty"`
	From       int    `json:"from,omitempty"`
	Size       int    `json:"size,omitempty"`
}

type Page struct {
	Total int64      `json:"total"`
	Hits  []Document `json:"hits"`
	Took  int64      `json:"took"`
}

// buildQuery renders q as an Elasticsearch bool query body.
func buildQuery(q Query) map[string]interface{} {
	var must []interface{}
	var filter []interface{}

	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"applicantName^2", "programChoice", "applicationId"},
			},
		})
	}
	for field, value := range map[string]string{
		"faculty":         q.Faculty,
		"status":          q.Status,
		"applicationType": q.Type,
	} {
		if value != "" {
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{field: value}})
		}
	}
	if q.UnpaidOnly {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"paymentClaimed": false}})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(boolQuery) == 0 {
		return map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}}
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"submissionId": "asc"}},
	}
}

func pageBounds(q Query) (from, size int) {
	from, size = q.From, q.Size
	if from < 0 {
		from = 0
	}
	if size < 1 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return from, size
}

// Search runs q against the index.
func (ix *Indexer) Search(ctx context.Context, q Query) (*Page, error) {
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, err
	}
	from, size := pageBounds(q)

	res, err := esapi.SearchRequest{
		Index: []string{ix.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}.Do(ctx, ix.client)
	if err != nil {
		return nil, fmt.Errorf("search submissions: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search submissions: %s", res.String())
	}

	var r struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &Page{Total: r.Hits.Total.Value, Took: r.Took, Hits: make([]Document, 0, len(r.Hits.Hits))}
	for _, h := range r.Hits.Hits {
		page.Hits = append(page.Hits, h.Source)
	}
	return page, nil
}
