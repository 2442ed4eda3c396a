package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
	"github.com/hitoshi/ojtracker/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type fakeAttemptRepo struct {
	joined  []repository.JoinedAttempt
	listErr error
}

func (r *fakeAttemptRepo) FindAllKeys(ctx context.Context) (map[model.AttemptKey]struct{}, error) {
	return nil, nil
}

func (r *fakeAttemptRepo) SaveAll(ctx context.Context, attempts []*model.Attempt) error {
	return nil
}

func (r *fakeAttemptRepo) ListAllForProjection(ctx context.Context) ([]repository.JoinedAttempt, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.joined, nil
}

type fakeRowRepo struct {
	mu         sync.Mutex
	rows       []*model.AttemptRow
	replaces   int
	replaceErr error
	block      chan struct{} // 非nilの場合、closeされるまでReplaceAllがブロックする
}

func (r *fakeRowRepo) ReplaceAll(ctx context.Context, rows []*model.AttemptRow) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// 失敗時は旧行をそのまま残す（単一トランザクションのロールバック相当）
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.replaces++
	r.rows = append([]*model.AttemptRow(nil), rows...)
	return nil
}

func (r *fakeRowRepo) PageByUsername(ctx context.Context, username string, page, size int) ([]*model.AttemptRow, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*model.AttemptRow
	for _, row := range r.rows {
		if row.Username == username {
			matched = append(matched, row)
		}
	}
	total := int64(len(matched))
	offset := page * size
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	observed int
}

func (m *fakeRecorder) ObserveRebuildDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed++
}

func sampleJoined() []repository.JoinedAttempt {
	points := 1000.0
	return []repository.JoinedAttempt{
		{
			Username:    "hitoshi",
			Platform:    model.PlatformCodeforces,
			Pid:         "1000A",
			ProblemName: "Theatre Square",
			URL:         "https://codeforces.com/problemset/problem/1000/A",
			Points:      &points,
			Tags:        []string{"math", "greedy"},
			Verdict:     model.VerdictAC,
			AttemptAt:   time.Unix(1000, 0).UTC(),
		},
		{
			Username:  "hitoshi",
			Platform:  model.PlatformCodeforces,
			Pid:       "1000A",
			Verdict:   model.VerdictWA,
			AttemptAt: time.Unix(900, 0).UTC(),
		},
	}
}

// 全置換で射影が再生成されることを検証
func TestRebuilder_Rebuild(t *testing.T) {
	attempts := &fakeAttemptRepo{joined: sampleJoined()}
	rows := &fakeRowRepo{rows: []*model.AttemptRow{{ID: "stale", Username: "old"}}}
	rec := &fakeRecorder{}

	r := NewRebuilder(attempts, rows, rec, testLogger())
	if err := r.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if rows.replaces != 1 {
		t.Errorf("replaces = %d, want 1", rows.replaces)
	}
	if len(rows.rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (旧行は消える)", len(rows.rows))
	}
	first := rows.rows[0]
	if first.ID == "" || first.ID == "stale" {
		t.Errorf("ID = %q, 新規採番されるべき", first.ID)
	}
	if first.Tags != "math,greedy" {
		t.Errorf("Tags = %q, want %q", first.Tags, "math,greedy")
	}
	if rec.observed != 1 {
		t.Errorf("observed = %d, want 1", rec.observed)
	}
}

// 再構築の多重起動が拒否されることを検証
func TestRebuilder_SingleFlight(t *testing.T) {
	block := make(chan struct{})
	attempts := &fakeAttemptRepo{joined: sampleJoined()}
	rows := &fakeRowRepo{block: block}

	r := NewRebuilder(attempts, rows, &fakeRecorder{}, testLogger())

	done := make(chan error, 1)
	go func() { done <- r.Rebuild(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for !r.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("IsRunning がtrueにならない")
		case <-time.After(time.Millisecond):
		}
	}
	if err := r.Rebuild(context.Background()); !errors.Is(err, ErrRebuildInProgress) {
		t.Errorf("err = %v, want ErrRebuildInProgress", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if r.IsRunning() {
		t.Error("完了後もIsRunningがtrueのまま")
	}
}

// 読み取り失敗時に旧射影が削除されないことを検証
func TestRebuilder_ListFailureKeepsOldRows(t *testing.T) {
	attempts := &fakeAttemptRepo{listErr: errors.New("db down")}
	rows := &fakeRowRepo{rows: []*model.AttemptRow{{ID: "keep", Username: "hitoshi"}}}

	r := NewRebuilder(attempts, rows, &fakeRecorder{}, testLogger())
	if err := r.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if rows.replaces != 0 {
		t.Errorf("replaces = %d, want 0 (読み取り失敗時は旧行を残す)", rows.replaces)
	}
	if len(rows.rows) != 1 {
		t.Errorf("len(rows) = %d, want 1", len(rows.rows))
	}
}

// 置き換え失敗時に旧射影がそのまま残ることを検証
func TestRebuilder_ReplaceFailureKeepsOldRows(t *testing.T) {
	attempts := &fakeAttemptRepo{joined: sampleJoined()}
	rows := &fakeRowRepo{
		rows:       []*model.AttemptRow{{ID: "keep", Username: "hitoshi"}},
		replaceErr: errors.New("insert failed"),
	}
	rec := &fakeRecorder{}

	r := NewRebuilder(attempts, rows, rec, testLogger())
	if err := r.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if len(rows.rows) != 1 || rows.rows[0].ID != "keep" {
		t.Errorf("rows = %+v, want 旧行1件のまま", rows.rows)
	}
	if rec.observed != 0 {
		t.Errorf("observed = %d, want 0 (失敗時は計測しない)", rec.observed)
	}
}

// ワーカーが依頼チャネルを消費して再構築することを検証
func TestRebuilder_Worker(t *testing.T) {
	attempts := &fakeAttemptRepo{joined: sampleJoined()}
	rows := &fakeRowRepo{}
	rec := &fakeRecorder{}

	r := NewRebuilder(attempts, rows, rec, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rebuildCh := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Worker(ctx, rebuildCh)
	}()

	rebuildCh <- struct{}{}

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		observed := rec.observed
		rec.mu.Unlock()
		if observed >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ワーカーが再構築を実行しない")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にワーカーが停止しない")
	}
}

// ページ取得のパラメータ正規化と委譲を検証
func TestRebuilder_GetPage(t *testing.T) {
	rows := &fakeRowRepo{}
	for i := 0; i < 25; i++ {
		rows.rows = append(rows.rows, &model.AttemptRow{ID: "r", Username: "hitoshi"})
	}

	r := NewRebuilder(&fakeAttemptRepo{}, rows, &fakeRecorder{}, testLogger())

	page, err := r.GetPage(context.Background(), "hitoshi", 0, 0)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.Size != 20 {
		t.Errorf("Size = %d, want 20 (デフォルト)", page.Size)
	}
	if len(page.Rows) != 20 || page.Total != 25 {
		t.Errorf("len(Rows) = %d, Total = %d, want 20, 25", len(page.Rows), page.Total)
	}

	page, err = r.GetPage(context.Background(), "hitoshi", 1, 20)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(page.Rows) != 5 {
		t.Errorf("2ページ目 len(Rows) = %d, want 5", len(page.Rows))
	}

	page, err = r.GetPage(context.Background(), "hitoshi", -1, 500)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.Page != 0 || page.Size != 100 {
		t.Errorf("Page = %d, Size = %d, want 0, 100 (正規化)", page.Page, page.Size)
	}

	page, err = r.GetPage(context.Background(), "nobody", 0, 20)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if len(page.Rows) != 0 || page.Total != 0 {
		t.Errorf("未知ユーザー: len(Rows) = %d, Total = %d, want 0, 0", len(page.Rows), page.Total)
	}
}
