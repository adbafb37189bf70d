package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestNextSaveSeqAllocatesMonotonically(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE chapters SET save_seq = save_seq \+ 1 WHERE id=\$1 RETURNING save_seq`).
		WithArgs("chp_1").
		WillReturnRows(sqlmock.NewRows([]string{"save_seq"}).AddRow(int64(4)))

	seq, err := store.NextSaveSeq(context.Background(), "chp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChapterContentDiscardsStaleSave(t *testing.T) {
	store, mock := newMockStore(t)

	// A save carrying a sequence below the stored one matches no row.
	mock.ExpectExec(`UPDATE chapters SET content=\$2, updated_at=NOW\(\) WHERE id=\$1 AND save_seq <= \$3`).
		WithArgs("chp_1", `{"type":"doc"}`, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := store.UpdateChapterContent(context.Background(), "chp_1", `{"type":"doc"}`, 3)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitChapterGuardsPendingStatus(t *testing.T) {
	for name, affected := range map[string]int64{"pending": 1, "not pending": 0} {
		t.Run(name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectExec(`UPDATE chapters SET status='reviewing', date_submitted=NOW\(\)`).
				WithArgs("chp_1").
				WillReturnResult(sqlmock.NewResult(0, affected))

			ok, err := store.SubmitChapter(context.Background(), "chp_1")
			require.NoError(t, err)
			assert.Equal(t, affected > 0, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApproveChapterGuardsReviewingStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE chapters SET status='approved'`).
		WithArgs("chp_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ApproveChapter(context.Background(), "chp_1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCommentIsOneWay(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE comments SET is_resolved=TRUE WHERE id=\$1 AND is_resolved=FALSE`).
		WithArgs("cmt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE comments SET is_resolved=TRUE WHERE id=\$1 AND is_resolved=FALSE`).
		WithArgs("cmt_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ResolveComment(context.Background(), "cmt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ResolveComment(context.Background(), "cmt_1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextChapterReturnsNilAfterLast(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "project_id", "title", "sort_order", "content", "status", "deadline", "date_submitted", "save_seq", "updated_at"}
	mock.ExpectQuery(`SELECT .+\s+FROM\s+chapters\s+WHERE project_id=\$1 AND sort_order > \$2`).
		WithArgs("prj_1", 5).
		WillReturnRows(sqlmock.NewRows(cols))

	next, err := store.NextChapter(context.Background(), "prj_1", 5)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideProposalGuardsPendingStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE proposals SET status=\$2`).
		WithArgs("prop_1", "APPROVED", "usr_a", "looks good").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.DecideProposal(context.Background(), "prop_1", "APPROVED", "usr_a", "looks good")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListConversationResolvesRecipientName(t *testing.T) {
	store, mock := newMockStore(t)

	sent := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "sender_id", "sender_name", "recipient_id", "display_name", "body", "read", "created_at"}
	mock.ExpectQuery(`SELECT m\.id, m\.sender_id, m\.sender_name, m\.recipient_id, u\.display_name, m\.body, m\.read, m\.created_at\s+FROM messages m\s+JOIN users u ON u\.id = m\.recipient_id`).
		WithArgs("usr_s", "usr_v", 100).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("msg_1", "usr_s", "Sam", "usr_v", "Vera", "draft question", false, sent))
	mock.ExpectExec(`UPDATE messages SET read=TRUE`).
		WithArgs("usr_s", "usr_v").
		WillReturnResult(sqlmock.NewResult(0, 0))

	items, err := store.ListConversation(context.Background(), "usr_s", "usr_v", 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sam", items[0].SenderName)
	assert.Equal(t, "Vera", items[0].RecipientName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
