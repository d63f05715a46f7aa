package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/journal-ingest/internal/ingest"
)

func testSummary() ingest.Summary {
	now := time.Unix(1700000000, 0).UTC()
	return ingest.Summary{
		RunID:            "run-1",
		StartPage:        1,
		StopPage:         9,
		PagesUploaded:    6,
		PagesExisting:    1,
		ArticlesUploaded: 120,
		FailedPages:      []int{5},
		StartedAt:        now,
		FinishedAt:       now.Add(time.Minute),
	}
}

func TestRecordRunSuccess(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	s := testSummary()
	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs(
			s.RunID,
			s.StartedAt,
			s.FinishedAt,
			s.StartPage,
			s.StopPage,
			s.PagesUploaded,
			s.PagesExisting,
			s.ArticlesUploaded,
			[]byte(`[5]`),
			RunSuccess,
			(*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), s, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)

	s := testSummary()
	s.FailedPages = nil
	msg := "fetch page 9: Error 500: Internal Server Error"
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			s.RunID,
			s.StartedAt,
			s.FinishedAt,
			s.StartPage,
			s.StopPage,
			s.PagesUploaded,
			s.PagesExisting,
			s.ArticlesUploaded,
			[]byte(`[]`),
			RunError,
			&msg,
		).
		WillReturnError(errors.New("connection reset"))

	err = store.RecordRun(context.Background(), s, errors.New(msg))
	require.ErrorContains(t, err, "insert run")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "runs")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.Error(t, err)
}
