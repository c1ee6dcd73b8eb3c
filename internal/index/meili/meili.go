// Package meili implements the keyword index adapter on Meilisearch, one
// lexical index per repository.
package meili

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/linkhive/linkhive/internal/index"
)

const (
	primaryKey = "uuid"
	linkField  = "parent_link"

	// taskPollInterval paces task-completion polling after writes.
	taskPollInterval = 50 * time.Millisecond
)

// indexSettings is the fixed schema applied when a repo's index is first
// created.
func indexSettings() *meilisearch.Settings {
	distinct := linkField
	return &meilisearch.Settings{
		RankingRules: []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
		DistinctAttribute: &distinct,
		SearchableAttributes: []string{"parent_link", "parent_summary", "parent_keywords", "parent_title"},
		DisplayedAttributes:  []string{"parent_link", "parent_summary", "parent_title", "parent_keywords"},
		SortableAttributes:   []string{"parent_link", "parent_title"},
		FilterableAttributes: []string{linkField},
		TypoTolerance: &meilisearch.TypoTolerance{
			Enabled: true,
			MinWordSizeForTypos: meilisearch.MinWordSizeForTypos{
				OneTypo:  8,
				TwoTypos: 10,
			},
			DisableOnAttributes: []string{"parent_summary"},
		},
		Pagination:     &meilisearch.Pagination{MaxTotalHits: 5000},
		Faceting:       &meilisearch.Faceting{MaxValuesPerFacet: 200},
		SearchCutoffMs: 150,
	}
}

// Adapter talks to one Meilisearch deployment.
type Adapter struct {
	client meilisearch.ServiceManager
}

// New connects to Meilisearch. apiKey may be empty for unsecured
// deployments.
func New(host, apiKey string) *Adapter {
	var opts []meilisearch.Option
	if apiKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(apiKey))
	}
	return &Adapter{client: meilisearch.New(host, opts...)}
}

// Close releases the underlying HTTP client.
func (a *Adapter) Close() {
	a.client.Close()
}

func (a *Adapter) indexExists(repo string) (bool, error) {
	indexes, err := a.client.ListIndexes(nil)
	if err != nil {
		return false, fmt.Errorf("listing indexes: %w", err)
	}
	for _, idx := range indexes.Results {
		if idx.UID == repo {
			return true, nil
		}
	}
	return false, nil
}

// EnsureIndex creates the repo's index with its fixed schema if absent.
// Idempotent; a lost creation race is success.
func (a *Adapter) EnsureIndex(ctx context.Context, repo string) error {
	exists, err := a.indexExists(repo)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	task, err := a.client.CreateIndex(&meilisearch.IndexConfig{Uid: repo, PrimaryKey: primaryKey})
	if err != nil {
		if isIndexAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("creating index %s: %w", repo, err)
	}
	if _, err := a.client.WaitForTask(task.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("awaiting index creation for %s: %w", repo, err)
	}

	settingsTask, err := a.client.Index(repo).UpdateSettings(indexSettings())
	if err != nil {
		return fmt.Errorf("applying settings to %s: %w", repo, err)
	}
	if _, err := a.client.WaitForTask(settingsTask.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("awaiting settings for %s: %w", repo, err)
	}
	return nil
}

func isIndexAlreadyExists(err error) bool {
	return strings.Contains(err.Error(), "index_already_exists")
}

// AddDocuments upserts denormalized chunk documents keyed by uuid.
func (a *Adapter) AddDocuments(ctx context.Context, repo string, docs []index.Unit) error {
	if len(docs) == 0 {
		return nil
	}
	task, err := a.client.Index(repo).AddDocuments(&docs)
	if err != nil {
		return fmt.Errorf("%w: meilisearch add to %s: %v", index.ErrIndexWrite, repo, err)
	}
	if _, err := a.client.WaitForTask(task.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("%w: awaiting meilisearch write to %s: %v", index.ErrIndexWrite, repo, err)
	}
	return nil
}

// DeleteByLinks removes every document whose parent_link matches any of
// links. The filterable-attribute schema is upgraded first if an older
// index predates link filtering; the upgrade is idempotent.
func (a *Adapter) DeleteByLinks(ctx context.Context, repo string, links []string) error {
	if len(links) == 0 {
		return nil
	}
	exists, err := a.indexExists(repo)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	idx := a.client.Index(repo)
	if err := a.ensureLinkFilterable(idx); err != nil {
		return err
	}

	quoted := make([]string, len(links))
	for i, link := range links {
		quoted[i] = strconv.Quote(link)
	}
	filter := fmt.Sprintf("%s IN [%s]", linkField, strings.Join(quoted, ", "))

	task, err := idx.DeleteDocumentsByFilter(filter)
	if err != nil {
		return fmt.Errorf("%w: meilisearch delete from %s: %v", index.ErrIndexWrite, repo, err)
	}
	if _, err := a.client.WaitForTask(task.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("%w: awaiting meilisearch delete from %s: %v", index.ErrIndexWrite, repo, err)
	}
	return nil
}

func (a *Adapter) ensureLinkFilterable(idx meilisearch.IndexManager) error {
	attrs, err := idx.GetFilterableAttributes()
	if err != nil {
		return fmt.Errorf("reading filterable attributes: %w", err)
	}
	if attrs != nil {
		for _, attr := range *attrs {
			if attr == linkField {
				return nil
			}
		}
	}

	upgraded := []string{linkField}
	if attrs != nil {
		upgraded = append(upgraded, *attrs...)
	}
	task, err := idx.UpdateFilterableAttributes(&upgraded)
	if err != nil {
		return fmt.Errorf("upgrading filterable attributes: %w", err)
	}
	if _, err := idx.WaitForTask(task.TaskUID, taskPollInterval); err != nil {
		return fmt.Errorf("awaiting filterable-attribute upgrade: %w", err)
	}
	return nil
}

// Search runs a plain lexical query against the repo's index. A missing
// index yields no hits.
func (a *Adapter) Search(ctx context.Context, repo, query string, limit int) ([]index.KeywordHit, error) {
	exists, err := a.indexExists(repo)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	resp, err := a.client.Index(repo).Search(query, &meilisearch.SearchRequest{
		Limit:            int64(limit),
		ShowRankingScore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", repo, err)
	}

	hits := make([]index.KeywordHit, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding hit from %s: %w", repo, err)
		}
		var hit struct {
			index.Unit
			RankingScore float64 `json:"_rankingScore"`
		}
		if err := json.Unmarshal(data, &hit); err != nil {
			return nil, fmt.Errorf("decoding hit from %s: %w", repo, err)
		}
		hits = append(hits, index.KeywordHit{Unit: hit.Unit, Score: hit.RankingScore})
	}
	return hits, nil
}

var _ index.KeywordIndex = (*Adapter)(nil)
