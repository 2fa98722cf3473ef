package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedsync/internal/model"
	"feedsync/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new account and populates its ID and CreatedAt.
func (s *SQLite) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (external_id, name, created_at) VALUES (?, ?, ?)`,
		account.ExternalID, account.Name, now,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	account.ID = id
	account.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListAccounts returns all accounts.
func (s *SQLite) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, name, last_refresh_at, created_at FROM accounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var lastRefresh, created sql.NullString
		if err := rows.Scan(&a.ID, &a.ExternalID, &a.Name, &lastRefresh, &created); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.LastRefreshAt = parseNullTime(lastRefresh)
		if created.Valid {
			a.CreatedAt, _ = time.Parse(timeLayout, created.String)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountRefreshedAt records the time of the last refresh attempt.
func (s *SQLite) UpdateAccountRefreshedAt(ctx context.Context, accountID int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_refresh_at = ? WHERE id = ?`,
		t.UTC().Format(timeLayout), accountID,
	)
	if err != nil {
		return fmt.Errorf("update account refreshed at: %w", err)
	}
	return nil
}

// ListFolders returns all folders belonging to the given account.
func (s *SQLite) ListFolders(ctx context.Context, accountID int64) ([]model.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, external_id, name, created_at
		 FROM folders WHERE account_id = ? ORDER BY id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		var created sql.NullString
		if err := rows.Scan(&f.ID, &f.AccountID, &f.ExternalID, &f.Name, &created); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		if created.Valid {
			f.CreatedAt, _ = time.Parse(timeLayout, created.String)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// ListFeeds returns all feeds belonging to the given account.
func (s *SQLite) ListFeeds(ctx context.Context, accountID int64) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, external_id, url, title, home_page_url,
		        etag, last_modified, conditional_get_at, content_hash,
		        cache_max_age_seconds, cache_fetched_at, last_checked_at, created_at
		 FROM feeds WHERE account_id = ? ORDER BY id`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// ListMemberships returns all folder/feed pairings for the given account.
func (s *SQLite) ListMemberships(ctx context.Context, accountID int64) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ff.folder_id, ff.feed_id, ff.relationship_id
		 FROM folder_feeds ff
		 JOIN folders fo ON fo.id = ff.folder_id
		 WHERE fo.account_id = ?`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memberships []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.FolderID, &m.FeedID, &m.RelationshipID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ApplyContainerChanges applies one reconciliation batch in a single
// transaction. Membership changes name folders and feeds symbolically so
// they can reference rows created earlier in the same batch.
func (s *SQLite) ApplyContainerChanges(ctx context.Context, accountID int64, changes *model.ContainerChanges) error {
	if changes.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	for _, folderID := range changes.DeleteFolderIDs {
		// Membership rows go with the folder; the member feeds become
		// top-level rather than being deleted.
		if _, err := tx.ExecContext(ctx, `DELETE FROM folder_feeds WHERE folder_id = ?`, folderID); err != nil {
			return fmt.Errorf("delete folder memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, folderID); err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
	}

	for _, folder := range changes.CreateFolders {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO folders (account_id, external_id, name, created_at) VALUES (?, ?, ?, ?)`,
			accountID, folder.ExternalID, folder.Name, now,
		); err != nil {
			return fmt.Errorf("insert folder: %w", err)
		}
	}

	for _, feedID := range changes.DeleteFeedIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM folder_feeds WHERE feed_id = ?`, feedID); err != nil {
			return fmt.Errorf("delete feed memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, feedID); err != nil {
			return fmt.Errorf("delete feed: %w", err)
		}
	}

	for _, feed := range changes.CreateFeeds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feeds (account_id, external_id, url, title, home_page_url, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			accountID, feed.ExternalID, feed.URL, feed.Title, feed.HomePageURL, now,
		); err != nil {
			return fmt.Errorf("insert feed: %w", err)
		}
	}

	for _, feed := range changes.UpdateFeeds {
		if _, err := tx.ExecContext(ctx,
			`UPDATE feeds SET title = ?, home_page_url = ?, url = ? WHERE id = ?`,
			feed.Title, feed.HomePageURL, feed.URL, feed.ID,
		); err != nil {
			return fmt.Errorf("update feed: %w", err)
		}
	}

	if len(changes.RemoveMemberships) > 0 || len(changes.AddMemberships) > 0 {
		folderIDs, feedIDs, err := containerIDs(ctx, tx, accountID)
		if err != nil {
			return err
		}

		for _, m := range changes.RemoveMemberships {
			folderID, ok := folderIDs[m.FolderName]
			if !ok {
				continue
			}
			feedID, ok := feedIDs[m.FeedExternalID]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM folder_feeds WHERE folder_id = ? AND feed_id = ?`, folderID, feedID,
			); err != nil {
				return fmt.Errorf("remove membership: %w", err)
			}
		}

		for _, m := range changes.AddMemberships {
			folderID, ok := folderIDs[m.FolderName]
			if !ok {
				continue
			}
			feedID, ok := feedIDs[m.FeedExternalID]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO folder_feeds (folder_id, feed_id, relationship_id) VALUES (?, ?, ?)
				 ON CONFLICT (folder_id, feed_id) DO UPDATE SET relationship_id = excluded.relationship_id`,
				folderID, feedID, m.RelationshipID,
			); err != nil {
				return fmt.Errorf("add membership: %w", err)
			}
		}
	}

	return tx.Commit()
}

// UpdateFeedFetchInfo persists conditional-GET metadata, the content hash,
// cache-control info, and the last-checked time.
func (s *SQLite) UpdateFeedFetchInfo(ctx context.Context, feed *model.Feed) error {
	var etag, lastModified string
	if feed.ConditionalGet != nil {
		etag = feed.ConditionalGet.ETag
		lastModified = feed.ConditionalGet.LastModified
	}
	var maxAge int64
	var cacheFetchedAt *string
	if feed.CacheControl != nil {
		maxAge = int64(feed.CacheControl.MaxAge / time.Second)
		v := feed.CacheControl.FetchedAt.UTC().Format(timeLayout)
		cacheFetchedAt = &v
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET etag = ?, last_modified = ?, conditional_get_at = ?,
		        content_hash = ?, cache_max_age_seconds = ?, cache_fetched_at = ?, last_checked_at = ?
		 WHERE id = ?`,
		etag, lastModified, formatNullTime(feed.ConditionalGetAt),
		feed.ContentHash, maxAge, cacheFetchedAt, formatNullTime(feed.LastCheckedAt),
		feed.ID,
	)
	if err != nil {
		return fmt.Errorf("update feed fetch info: %w", err)
	}
	return nil
}

// UpsertArticles stores entries and guarantees a status row per article.
// An existing status row is left alone so a status that arrived before the
// article is inherited instead of being reset to defaults.
func (s *SQLite) UpsertArticles(ctx context.Context, feedID int64, entries []model.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	created := 0

	for _, entry := range entries {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM articles WHERE external_id = ?`, entry.ID,
		).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check article: %w", err)
		}
		if exists == 0 {
			created++
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO articles (feed_id, external_id, title, content_html, url, published_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (external_id) DO UPDATE SET
			   title = excluded.title, content_html = excluded.content_html,
			   url = excluded.url, published_at = excluded.published_at`,
			feedID, entry.ID, entry.Title, entry.ContentHTML, entry.URL, formatNullTime(entry.PublishedAt),
		); err != nil {
			return 0, fmt.Errorf("upsert article: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO statuses (article_id, read, starred, date_arrived) VALUES (?, 0, 0, ?)`,
			entry.ID, now,
		); err != nil {
			return 0, fmt.Errorf("ensure status: %w", err)
		}
	}

	return created, tx.Commit()
}

// FetchArticlesByIDs returns the articles already materialized locally for
// the given external IDs. IDs with no article yet are simply absent.
func (s *SQLite) FetchArticlesByIDs(ctx context.Context, articleIDs []string) ([]model.Article, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, feed_id, external_id, title, content_html, url, published_at
	          FROM articles WHERE external_id IN (` + placeholders(len(articleIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, idArgs(articleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var published sql.NullString
		if err := rows.Scan(&a.ID, &a.FeedID, &a.ExternalID, &a.Title, &a.ContentHTML, &a.URL, &published); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.PublishedAt = parseNullTime(published)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// ArticleIDsWithFlag returns the set of article IDs whose flag for key has
// the given value.
func (s *SQLite) ArticleIDsWithFlag(ctx context.Context, key model.StatusKey, flag bool) (map[string]bool, error) {
	column, err := statusColumn(key)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id FROM statuses WHERE `+column+` = ?`, boolToInt(flag),
	)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// MarkArticleIDs sets the flag for key on every given article ID, creating
// standalone status rows for articles that have not been downloaded yet.
func (s *SQLite) MarkArticleIDs(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error {
	return s.markArticleIDs(ctx, articleIDs, key, flag, false)
}

// MarkArticles sets the flag like MarkArticleIDs and queues the outbound
// delta for each article in the same transaction.
func (s *SQLite) MarkArticles(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error {
	return s.markArticleIDs(ctx, articleIDs, key, flag, true)
}

func (s *SQLite) markArticleIDs(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool, enqueue bool) error {
	if len(articleIDs) == 0 {
		return nil
	}
	column, err := statusColumn(key)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, id := range articleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statuses (article_id, `+column+`, date_arrived) VALUES (?, ?, ?)
			 ON CONFLICT (article_id) DO UPDATE SET `+column+` = excluded.`+column,
			id, boolToInt(flag), now,
		); err != nil {
			return fmt.Errorf("mark article: %w", err)
		}
		if !enqueue {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_statuses (article_id, key, flag, selected) VALUES (?, ?, ?, 0)
			 ON CONFLICT (article_id, key) DO UPDATE SET flag = excluded.flag, selected = 0`,
			id, string(key), boolToInt(flag),
		); err != nil {
			return fmt.Errorf("enqueue sync status: %w", err)
		}
	}
	return tx.Commit()
}

// EnqueueSyncStatuses records pending outbound status changes. A newer
// change for the same article and key replaces the older one.
func (s *SQLite) EnqueueSyncStatuses(ctx context.Context, statuses []model.SyncStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range statuses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_statuses (article_id, key, flag, selected) VALUES (?, ?, ?, 0)
			 ON CONFLICT (article_id, key) DO UPDATE SET flag = excluded.flag, selected = 0`,
			st.ArticleID, string(st.Key), boolToInt(st.Flag),
		); err != nil {
			return fmt.Errorf("enqueue sync status: %w", err)
		}
	}
	return tx.Commit()
}

// SelectSyncStatusesForProcessing marks all pending statuses as selected and
// returns them. Selected statuses are skipped by a concurrent select until
// they are deleted or reset.
func (s *SQLite) SelectSyncStatusesForProcessing(ctx context.Context) ([]model.SyncStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT article_id, key, flag FROM sync_statuses WHERE selected = 0 ORDER BY article_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sync statuses: %w", err)
	}

	var statuses []model.SyncStatus
	for rows.Next() {
		var st model.SyncStatus
		var keyStr string
		var flag int
		if err := rows.Scan(&st.ArticleID, &keyStr, &flag); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan sync status: %w", err)
		}
		st.Key = model.StatusKey(keyStr)
		st.Flag = flag == 1
		st.Selected = true
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `UPDATE sync_statuses SET selected = 1 WHERE selected = 0`); err != nil {
		return nil, fmt.Errorf("select for processing: %w", err)
	}
	return statuses, tx.Commit()
}

// DeleteSelectedSyncStatuses removes acknowledged statuses.
func (s *SQLite) DeleteSelectedSyncStatuses(ctx context.Context, articleIDs []string, key model.StatusKey) error {
	if len(articleIDs) == 0 {
		return nil
	}
	query := `DELETE FROM sync_statuses WHERE selected = 1 AND key = ? AND article_id IN (` +
		placeholders(len(articleIDs)) + `)`
	args := append([]any{string(key)}, idArgs(articleIDs)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete sync statuses: %w", err)
	}
	return nil
}

// ResetSelectedSyncStatuses puts failed statuses back into the pending pool
// so a later sync retries them.
func (s *SQLite) ResetSelectedSyncStatuses(ctx context.Context, articleIDs []string, key model.StatusKey) error {
	if len(articleIDs) == 0 {
		return nil
	}
	query := `UPDATE sync_statuses SET selected = 0 WHERE key = ? AND article_id IN (` +
		placeholders(len(articleIDs)) + `)`
	args := append([]any{string(key)}, idArgs(articleIDs)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("reset sync statuses: %w", err)
	}
	return nil
}

// PendingSyncStatusArticleIDs returns every article ID with a queued (sent
// or unsent) outbound change for key. The status pull excludes these so
// local intent is not overwritten before it reaches the service.
func (s *SQLite) PendingSyncStatusArticleIDs(ctx context.Context, key model.StatusKey) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id FROM sync_statuses WHERE key = ?`, string(key),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending sync statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending sync status: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// containerIDs builds the folder-name and feed-external-ID lookup maps used
// to resolve membership changes inside a transaction.
func containerIDs(ctx context.Context, tx *sql.Tx, accountID int64) (map[string]int64, map[string]int64, error) {
	folderIDs := make(map[string]int64)
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM folders WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("query folder ids: %w", err)
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("scan folder id: %w", err)
		}
		folderIDs[name] = id
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	feedIDs := make(map[string]int64)
	rows, err = tx.QueryContext(ctx, `SELECT id, external_id FROM feeds WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("query feed ids: %w", err)
	}
	for rows.Next() {
		var id int64
		var externalID string
		if err := rows.Scan(&id, &externalID); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("scan feed id: %w", err)
		}
		feedIDs[externalID] = id
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	return folderIDs, feedIDs, nil
}

func statusColumn(key model.StatusKey) (string, error) {
	switch key {
	case model.StatusRead:
		return "read", nil
	case model.StatusStarred:
		return "starred", nil
	default:
		return "", fmt.Errorf("unknown status key %q", key)
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeed(row scannable) (model.Feed, error) {
	var f model.Feed
	var etag, lastModified string
	var conditionalGetAt, cacheFetchedAt, lastCheckedAt, created sql.NullString
	var maxAgeSeconds int64

	err := row.Scan(&f.ID, &f.AccountID, &f.ExternalID, &f.URL, &f.Title, &f.HomePageURL,
		&etag, &lastModified, &conditionalGetAt, &f.ContentHash,
		&maxAgeSeconds, &cacheFetchedAt, &lastCheckedAt, &created)
	if err != nil {
		return f, fmt.Errorf("scan feed: %w", err)
	}

	if etag != "" || lastModified != "" {
		f.ConditionalGet = &model.ConditionalGetInfo{ETag: etag, LastModified: lastModified}
	}
	f.ConditionalGetAt = parseNullTime(conditionalGetAt)
	if fetchedAt := parseNullTime(cacheFetchedAt); fetchedAt != nil && maxAgeSeconds > 0 {
		f.CacheControl = &model.CacheControlInfo{
			MaxAge:    time.Duration(maxAgeSeconds) * time.Second,
			FetchedAt: *fetchedAt,
		}
	}
	f.LastCheckedAt = parseNullTime(lastCheckedAt)
	if created.Valid {
		f.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}
