// Package search keeps an Elasticsearch projection of submissions for the
// admissions office and queries it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"admission-portal/internal/common/logger"
	"admission-portal/internal/events"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	SubscriberName = "search-indexer"
	DefaultIndex   = "submissions"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"submissionId":     {"type": "long"},
			"applicationId":    {"type": "keyword"},
			"userId":           {"type": "long"},
			"applicationType":  {"type": "keyword"},
			"faculty":          {"type": "keyword"},
			"programChoice":    {"type": "text", "fields": {"raw": {"type": "keyword"}}},
			"applicantName":    {"type": "text"},
			"status":           {"type": "keyword"},
			"decisionDate":     {"type": "date"},
			"paymentReference": {"type": "keyword"},
			"paymentClaimed":   {"type": "boolean"},
			"finalizedAt":      {"type": "date"},
			"updatedAt":        {"type": "date"}
		}
	}
}`

// Document is the indexed shape of a submission.
type Document struct {
	SubmissionID     int64      `json:"submissionId"`
	ApplicationID    string     `json:"applicationId"`
	UserID           int64      `json:"userId"`
	ApplicationType  string     `json:"applicationType"`
	Faculty          string     `json:"faculty"`
	ProgramChoice    string     `json:"programChoice"`
	ApplicantName    string     `json:"applicantName"`
	Status           string     `json:"status"`
	DecisionDate     *time.Time `json:"decisionDate,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`
	PaymentClaimed   bool       `json:"paymentClaimed"`
	FinalizedAt      time.Time  `json:"finalizedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Indexer is an events.Subscriber that upserts submission documents.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"subscriber": SubscriberName, "index": index}),
	}
}

func (ix *Indexer) Name() string { return SubscriberName }

// EnsureIndex creates the index with its mapping when missing.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{ix.index}}.Do(ctx, ix.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", ix.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{Index: ix.index, Body: bytes.NewReader([]byte(indexMapping))}.Do(ctx, ix.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", ix.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", ix.index, res.String())
	}
	ix.logger.Info("Search index created", nil)
	return nil
}

func (ix *Indexer) Handle(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.SubmissionFinalized:
		return ix.put(ctx, ev.SubmissionID, Document{
			SubmissionID:    ev.SubmissionID,
			ApplicationID:   ev.ApplicationID,
			UserID:          ev.UserID,
			ApplicationType: string(ev.ApplicationType),
			Faculty:         ev.Faculty,
			ProgramChoice:   ev.ProgramChoice,
			ApplicantName:   ev.ApplicantName,
			Status:          "submitted",
			FinalizedAt:     ev.FinalizedAt,
			UpdatedAt:       ev.FinalizedAt,
		})
	case events.SubmissionStatusChanged:
		patch := map[string]interface{}{
			"status":    string(ev.To),
			"updatedAt": ev.ChangedAt,
		}
		if ev.DecisionDate != nil {
			patch["decisionDate"] = ev.DecisionDate
		}
		return ix.patch(ctx, ev.SubmissionID, patch)
	case events.ReferenceClaimed:
		if ev.SubmissionID == 0 {
			return nil
		}
		return ix.patch(ctx, ev.SubmissionID, map[string]interface{}{
			"paymentReference": ev.Reference,
			"paymentClaimed":   true,
			"updatedAt":        ev.ClaimedAt,
		})
	default:
		return nil
	}
}

func (ix *Indexer) put(ctx context.Context, id int64, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := esapi.IndexRequest{
		Index:      ix.index,
		DocumentID: strconv.FormatInt(id, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, ix.client)
	return checkResponse("index", res, err)
}

// patch upserts a partial document so events arriving out of order still land.
func (ix *Indexer) patch(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["submissionId"] = id
	body, err := json.Marshal(map[string]interface{}{
		"doc":           fields,
		"doc_as_upsert": true,
	})
	if err != nil {
		return err
	}
	res, err := esapi.UpdateRequest{
		Index:      ix.index,
		DocumentID: strconv.FormatInt(id, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, ix.client)
	return checkResponse("update", res, err)
}

func checkResponse(op string, res *esapi.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s document: %w", op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s document: %s: %s", op, res.Status(), msg)
	}
	return nil
}
