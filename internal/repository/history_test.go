package repository

import (
	"path/filepath"
	"testing"
	"time"

	"fetchrelay/internal/db"
	"fetchrelay/internal/model"
)

func setupDB(t *testing.T) *HistoryRepository {
	t.Helper()

	if err := db.Init(filepath.Join(t.TempDir(), "history.db")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewHistoryRepository()
}

func TestHistoryStatsAndRecent(t *testing.T) {
	repo := setupDB(t)

	base := time.Now()
	rows := []model.History{
		{JobID: "job_1", SourceRef: "https://a/1", Kind: model.KindUpload, State: model.StateDone, Size: 100, FinishedAt: base},
		{JobID: "job_2", SourceRef: "https://a/2", Kind: model.KindDownload, State: model.StateDone, Size: 50, FinishedAt: base.Add(time.Second)},
		{JobID: "job_3", SourceRef: "https://a/3", Kind: model.KindUpload, State: model.StateError, ErrMsg: "boom", FinishedAt: base.Add(2 * time.Second)},
		{JobID: "job_4", SourceRef: "https://a/4", Kind: model.KindUpload, State: model.StateCancelled, FinishedAt: base.Add(3 * time.Second)},
	}
	for i := range rows {
		if err := repo.Save(&rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Done != 2 || stats.Failed != 1 || stats.Cancelled != 1 || stats.Bytes != 150 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	recent, err := repo.GetRecent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].JobID != "job_4" || recent[1].JobID != "job_3" {
		t.Fatalf("unexpected recent rows %+v", recent)
	}

	failed, err := repo.GetFailed()
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ErrMsg != "boom" {
		t.Fatalf("unexpected failed rows %+v", failed)
	}
}
