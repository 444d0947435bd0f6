package notification

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/internal/database"
	"github.com/threadline/pkg/models"
)

// fixture holds the rows one integration test works against. Everything is
// suffixed with a nanosecond stamp so parallel runs never collide on the
// unique username/email constraints.
type fixture struct {
	db      *sql.DB
	repo    *Repository
	actor   int64
	other   int64
	subject int64
	node    int64
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	ctx := context.Background()
	require.NoError(t, database.EnsureSchema(ctx, db))

	stamp := time.Now().UnixNano()
	f := &fixture{db: db, repo: NewRepository(db)}

	mkUser := func(name string) int64 {
		var id int64
		err := db.QueryRow(`
			INSERT INTO users (username, email, password_hash)
			VALUES ($1, $2, 'x') RETURNING id
		`, fmt.Sprintf("%s_%d", name, stamp), fmt.Sprintf("%s_%d@test.local", name, stamp)).Scan(&id)
		require.NoError(t, err)
		return id
	}
	f.actor = mkUser("actor")
	f.other = mkUser("other")

	err = db.QueryRow(`
		INSERT INTO subjects (kind, title, owner_id)
		VALUES ('media', $1, $2) RETURNING id
	`, fmt.Sprintf("Reel %d", stamp), f.actor).Scan(&f.subject)
	require.NoError(t, err)

	err = db.QueryRow(`
		INSERT INTO thread_nodes (kind, subject_id, author_id, text_body)
		VALUES ('comment', $1, $2, 'hello') RETURNING id
	`, f.subject, f.actor).Scan(&f.node)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec(`DELETE FROM notifications WHERE subject_id = $1`, f.subject)
		db.Exec(`DELETE FROM thread_nodes WHERE subject_id = $1`, f.subject)
		db.Exec(`DELETE FROM subjects WHERE id = $1`, f.subject)
		db.Exec(`DELETE FROM users WHERE id IN ($1, $2)`, f.actor, f.other)
		db.Close()
	})

	return f
}

func (f *fixture) insert(t *testing.T, n *models.Notification) bool {
	t.Helper()
	ctx := context.Background()
	tx, err := f.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	inserted, err := f.repo.InsertTx(ctx, tx, n)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return inserted
}

func (f *fixture) notification() *models.Notification {
	return &models.Notification{
		RecipientID:   f.other,
		TriggeredByID: f.actor,
		SubjectID:     f.subject,
		NodeID:        &f.node,
		Kind:          models.NotificationReply,
		Message:       "actor replied to your comment",
	}
}

func TestRepositoryInsertTx(t *testing.T) {
	f := setupFixture(t)

	t.Run("insert fills id and created_at", func(t *testing.T) {
		n := f.notification()
		require.True(t, f.insert(t, n))
		assert.NotZero(t, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
	})

	t.Run("same recipient and node is idempotent", func(t *testing.T) {
		n := f.notification()
		assert.False(t, f.insert(t, n), "duplicate (recipient, node) must not insert")

		count, err := f.repo.UnreadCount(context.Background(), f.other)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestRepositoryReadState(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	n := f.notification()
	require.True(t, f.insert(t, n))

	t.Run("unread count reflects is_read flags", func(t *testing.T) {
		count, err := f.repo.UnreadCount(ctx, f.other)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("wrong recipient cannot mark read", func(t *testing.T) {
		err := f.repo.MarkRead(ctx, n.ID, f.actor)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("mark read is idempotent and terminal", func(t *testing.T) {
		require.NoError(t, f.repo.MarkRead(ctx, n.ID, f.other))
		require.NoError(t, f.repo.MarkRead(ctx, n.ID, f.other))

		count, err := f.repo.UnreadCount(ctx, f.other)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("missing notification is not found", func(t *testing.T) {
		err := f.repo.MarkRead(ctx, -1, f.other)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRepositoryList(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	require.True(t, f.insert(t, f.notification()))

	items, total, err := f.repo.List(ctx, f.other, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].TriggeredByName, "actor")
	assert.Contains(t, items[0].SubjectTitle, "Reel")

	t.Run("empty page encodes as empty slice", func(t *testing.T) {
		items, total, err := f.repo.List(ctx, f.actor, 1, 20)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}
