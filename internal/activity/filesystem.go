package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"mfaengine/internal/models"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	indexSchemaVersion = "mfa-audit-2"
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
	defaultLookback    = 30 * 24 * time.Hour
	reindexPageSize    = 200
)

var schemaVersionKey = []byte("schema_version")

// auditKeywords are matched exactly by AuditQuery filters.
var auditKeywords = []string{
	"action",
	"object_type",
	"user_id",
	"method",
	"config_id",
	"outcome",
	"risk_level",
	"ip_address",
}

var attemptOutcomes = []models.AttemptOutcome{
	models.OutcomeIssued,
	models.OutcomeVerified,
	models.OutcomeFailed,
	models.OutcomeExpired,
	models.OutcomeLocked,
}

// auditDocument is the shape stored in bleve. Object holds JSON and is stored but not indexed.
type auditDocument struct {
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type"`
	UserID     string    `json:"user_id"`
	Method     string    `json:"method"`
	ConfigID   string    `json:"config_id"`
	Outcome    string    `json:"outcome"`
	RiskLevel  string    `json:"risk_level"`
	IPAddress  string    `json:"ip_address"`
	Object     string    `json:"object"`
}

// FilesystemClient keeps the MFA audit trail in a local bleve index.
type FilesystemClient struct {
	index bleve.Index
	now   func() time.Time
}

// NewFilesystemClient opens the index at the configured directory, creating it on first use and
// rebuilding it when it was written with another schema version.
func NewFilesystemClient(config models.ActivityConfiguration) IActivityLogger {
	dir := config.Filesystem.Directory

	index, err := openIndex(dir)
	if err != nil {
		zap.L().Fatal("Failed to open activity index", zap.String("directory", dir), zap.Error(err))
	}

	return &FilesystemClient{index: index, now: time.Now}
}

func openIndex(dir string) (bleve.Index, error) {
	index, err := bleve.Open(dir)
	if err != nil {
		return createIndex(dir)
	}

	version, err := index.GetInternal(schemaVersionKey)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if string(version) == indexSchemaVersion {
		return index, nil
	}

	zap.L().Info("Activity index schema changed, rebuilding",
		zap.String("from", string(version)),
		zap.String("to", indexSchemaVersion))
	return rebuildIndex(dir, index)
}

func createIndex(dir string) (bleve.Index, error) {
	index, err := bleve.New(dir, newAuditMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create activity index: %w", err)
	}
	if err = index.SetInternal(schemaVersionKey, []byte(indexSchemaVersion)); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to set schema version: %w", err)
	}
	return index, nil
}

func newAuditMapping() *mapping.IndexMappingImpl {
	keyword := bleve.NewKeywordFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true

	doc := bleve.NewDocumentMapping()
	for _, field := range auditKeywords {
		doc.AddFieldMappingsAt(field, keyword)
	}
	doc.AddFieldMappingsAt("timestamp", bleve.NewDateTimeFieldMapping())
	doc.AddFieldMappingsAt("message", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("object", stored)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	return indexMapping
}

// rebuildIndex copies every document of stale into a staging index, then swaps directories.
func rebuildIndex(dir string, stale bleve.Index) (bleve.Index, error) {
	staging := dir + ".rebuild"
	_ = os.RemoveAll(staging)

	fresh, err := createIndex(staging)
	if err != nil {
		_ = stale.Close()
		return nil, err
	}

	copied, err := copyDocuments(stale, fresh)
	if closeErr := errors.Join(stale.Close(), fresh.Close()); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.RemoveAll(staging)
		return nil, err
	}

	retired := dir + ".retired"
	if err = os.Rename(dir, retired); err != nil {
		return nil, fmt.Errorf("failed to retire stale index: %w", err)
	}
	if err = os.Rename(staging, dir); err != nil {
		return nil, fmt.Errorf("failed to promote rebuilt index: %w", err)
	}
	if err = os.RemoveAll(retired); err != nil {
		zap.L().Warn("Failed to remove retired activity index", zap.Error(err))
	}

	zap.L().Info("Activity index rebuilt", zap.Int("documents", copied))
	return bleve.Open(dir)
}

func copyDocuments(from bleve.Index, to bleve.Index) (int, error) {
	copied := 0
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), reindexPageSize, copied, false)
		req.SortBy([]string{"_id"})
		req.Fields = []string{"*"}

		result, err := from.Search(req)
		if err != nil {
			return copied, fmt.Errorf("failed to read stale index: %w", err)
		}
		if len(result.Hits) == 0 {
			return copied, nil
		}

		batch := to.NewBatch()
		for _, hit := range result.Hits {
			if err = batch.Index(hit.ID, documentFromFields(hit.Fields)); err != nil {
				return copied, fmt.Errorf("failed to stage document %s: %w", hit.ID, err)
			}
		}
		if err = to.Batch(batch); err != nil {
			return copied, fmt.Errorf("failed to write rebuilt index: %w", err)
		}

		copied += len(result.Hits)
		if len(result.Hits) < reindexPageSize {
			return copied, nil
		}
	}
}

func (c *FilesystemClient) Close() error {
	return c.index.Close()
}

func (c *FilesystemClient) Send(activity models.Activity) error {
	doc, err := newAuditDocument(activity)
	if err != nil {
		return err
	}

	if err = c.index.Index(uuid.NewString(), doc); err != nil {
		return fmt.Errorf("failed to index activity: %w", err)
	}
	return nil
}

func newAuditDocument(activity models.Activity) (auditDocument, error) {
	nanos, err := strconv.ParseInt(activity.Filter.Timestamp, 10, 64)
	if err != nil {
		return auditDocument{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	fields := activity.Filter.Fields
	doc := auditDocument{
		Message:    activity.Message,
		Timestamp:  time.Unix(0, nanos).UTC(),
		Action:     fields["action"],
		ObjectType: fields["object_type"],
		UserID:     fields["user_id"],
		Method:     fields["method"],
		ConfigID:   fields["config_id"],
		Outcome:    fields["outcome"],
		RiskLevel:  fields["risk_level"],
		IPAddress:  fields["ip_address"],
	}

	if activity.Object != nil && isAuthorizedObject(doc.ObjectType) {
		raw, marshalErr := json.Marshal(activity.Object)
		if marshalErr != nil {
			return auditDocument{}, fmt.Errorf("failed to marshal object: %w", marshalErr)
		}
		doc.Object = string(raw)
	}

	return doc, nil
}

func (c *FilesystemClient) Search(q models.AuditQuery) ([]models.AuditEntry, error) {
	req := bleve.NewSearchRequest(c.buildQuery(q))
	req.Size = searchLimit(q.Limit)
	req.SortBy([]string{"-timestamp"})
	req.Fields = []string{"*"}

	result, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		entries = append(entries, entryFromFields(hit.Fields))
	}
	return entries, nil
}

func (c *FilesystemClient) CountByOutcome(q models.AuditQuery) ([]models.OutcomeCount, error) {
	outcomes := q.Outcomes
	if len(outcomes) == 0 {
		for _, o := range attemptOutcomes {
			outcomes = append(outcomes, string(o))
		}
	}

	var counts []models.OutcomeCount
	for _, outcome := range outcomes {
		scoped := q
		scoped.Outcomes = []string{outcome}

		req := bleve.NewSearchRequest(c.buildQuery(scoped))
		req.Size = 0

		result, err := c.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s activity: %w", outcome, err)
		}
		if result.Total > 0 {
			counts = append(counts, models.OutcomeCount{
				Outcome: models.AttemptOutcome(outcome),
				Count:   result.Total,
			})
		}
	}
	return counts, nil
}

func (c *FilesystemClient) buildQuery(q models.AuditQuery) query.Query {
	until := q.Until
	if until.IsZero() {
		until = c.now()
	}
	since := q.Since
	if since.IsZero() {
		since = until.Add(-defaultLookback)
	}

	inclusive := true
	window := bleve.NewDateRangeInclusiveQuery(since, until, &inclusive, &inclusive)
	window.SetField("timestamp")

	clauses := []query.Query{window}
	if q.UserID != "" {
		clauses = append(clauses, anyOf("user_id", []string{q.UserID}))
	}
	if len(q.Actions) > 0 {
		clauses = append(clauses, anyOf("action", q.Actions))
	}
	if len(q.Methods) > 0 {
		clauses = append(clauses, anyOf("method", q.Methods))
	}
	if len(q.Outcomes) > 0 {
		clauses = append(clauses, anyOf("outcome", q.Outcomes))
	}
	if len(q.RiskLevels) > 0 {
		clauses = append(clauses, anyOf("risk_level", q.RiskLevels))
	}

	return bleve.NewConjunctionQuery(clauses...)
}

func anyOf(field string, values []string) query.Query {
	if len(values) == 1 {
		term := bleve.NewTermQuery(values[0])
		term.SetField(field)
		return term
	}

	terms := make([]query.Query, 0, len(values))
	for _, v := range values {
		term := bleve.NewTermQuery(v)
		term.SetField(field)
		terms = append(terms, term)
	}
	disjunction := bleve.NewDisjunctionQuery(terms...)
	disjunction.SetMin(1)
	return disjunction
}

func searchLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultSearchLimit
	case limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return limit
	}
}

func stringField(fields map[string]any, name string) string {
	value, _ := fields[name].(string)
	return value
}

func documentFromFields(fields map[string]any) auditDocument {
	doc := auditDocument{
		Message:    stringField(fields, "message"),
		Action:     stringField(fields, "action"),
		ObjectType: stringField(fields, "object_type"),
		UserID:     stringField(fields, "user_id"),
		Method:     stringField(fields, "method"),
		ConfigID:   stringField(fields, "config_id"),
		Outcome:    stringField(fields, "outcome"),
		RiskLevel:  stringField(fields, "risk_level"),
		IPAddress:  stringField(fields, "ip_address"),
		Object:     stringField(fields, "object"),
	}
	if ts, err := time.Parse(time.RFC3339, stringField(fields, "timestamp")); err == nil {
		doc.Timestamp = ts
	}
	return doc
}

func entryFromFields(fields map[string]any) models.AuditEntry {
	doc := documentFromFields(fields)
	entry := models.AuditEntry{
		Message:    doc.Message,
		Timestamp:  doc.Timestamp,
		Action:     doc.Action,
		ObjectType: doc.ObjectType,
		UserID:     doc.UserID,
		Method:     doc.Method,
		ConfigID:   doc.ConfigID,
		Outcome:    doc.Outcome,
		RiskLevel:  doc.RiskLevel,
		IPAddress:  doc.IPAddress,
	}
	if doc.Object != "" {
		var object map[string]any
		if json.Unmarshal([]byte(doc.Object), &object) == nil {
			entry.Object = object
		}
	}
	return entry
}
