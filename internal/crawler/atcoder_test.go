package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

const atcoderSampleResponse = `[
  {
    "id": 12345,
    "epoch_second": 1740000000,
    "problem_id": "abc300_a",
    "contest_id": "abc300",
    "user_id": "hitoshi",
    "point": 100.0,
    "result": "AC"
  },
  {
    "id": 12346,
    "epoch_second": 1740000100,
    "problem_id": "abc300_b",
    "contest_id": "abc300",
    "user_id": "hitoshi",
    "point": 0.0,
    "result": "TLE"
  },
  {
    "id": 12347,
    "epoch_second": 1740000200,
    "problem_id": "abc300_c",
    "contest_id": "abc300",
    "user_id": "hitoshi",
    "point": 0.0,
    "result": "IE"
  }
]`

func atcoderTestLink(serverURL string) *model.PlatformLink {
	return &model.PlatformLink{
		Platform:          model.PlatformAtCoder,
		UserInfoLink:      serverURL + "/atcoder-api/results?user=%s",
		ProblemLink:       "https://atcoder.jp/contests/%s/tasks/%s",
		ProblemStatusLink: serverURL + "/resources/problems.json",
	}
}

// ミラーAPIの提出が正規化されることを検証
func TestAtCoderAdapter_FetchAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atcoderSampleResponse))
	}))
	defer server.Close()

	adapter := NewAtCoderAdapter(newTestClient(), testLogger())
	attempts, err := adapter.FetchAttempts(context.Background(), atcoderTestLink(server.URL), "hitoshi")
	if err != nil {
		t.Fatalf("FetchAttempts failed: %v", err)
	}

	if len(attempts) != 3 {
		t.Fatalf("len(attempts) = %d, want 3", len(attempts))
	}

	first := attempts[0]
	if first.Pid != "abc300_a" {
		t.Errorf("Pid = %q", first.Pid)
	}
	if first.Verdict != model.VerdictAC {
		t.Errorf("Verdict = %q, want AC", first.Verdict)
	}
	if first.ProblemURL != "https://atcoder.jp/contests/abc300/tasks/abc300_a" {
		t.Errorf("ProblemURL = %q", first.ProblemURL)
	}
	if first.Points == nil || *first.Points != 100 {
		t.Errorf("Points = %v, want 100", first.Points)
	}
	if !first.AttemptAt.Equal(time.Unix(1740000000, 0).UTC()) {
		t.Errorf("AttemptAt = %v", first.AttemptAt)
	}

	if attempts[1].Verdict != model.VerdictTLE {
		t.Errorf("attempts[1].Verdict = %q, want TLE", attempts[1].Verdict)
	}
	// 0点は未設定として扱う
	if attempts[1].Points != nil {
		t.Errorf("attempts[1].Points = %v, want nil", attempts[1].Points)
	}
	// IEは写像にないためUNKNOWN
	if attempts[2].Verdict != model.VerdictUnknown {
		t.Errorf("attempts[2].Verdict = %q, want UNKNOWN", attempts[2].Verdict)
	}
}

// 配列以外の応答は解析エラーになることを検証
func TestAtCoderAdapter_FetchAttempts_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer server.Close()

	adapter := NewAtCoderAdapter(newTestClient(), testLogger())
	_, err := adapter.FetchAttempts(context.Background(), atcoderTestLink(server.URL), "hitoshi")
	if err == nil {
		t.Fatal("expected parse error")
	}

	var ce *model.CrawlError
	if !asCrawlError(err, &ce) || ce.Code != model.ErrCodeParse {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

// トークン必須設定での接続確認が問題一覧の取得成功でValid=trueを返すことを検証
func TestAtCoderAdapter_ValidateToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"abc300_a"}]`))
	}))
	defer server.Close()

	link := atcoderTestLink(server.URL)
	link.RequiresToken = true

	adapter := NewAtCoderAdapter(newTestClient(), testLogger())
	result := adapter.ValidateToken(context.Background(), link)
	if !result.Valid {
		t.Errorf("Valid = false, message: %s", result.Message)
	}
}

// トークン不要のプラットフォームは通信なしで常にValid=trueを返すことを検証
func TestAtCoderAdapter_ValidateToken_TokenlessAlwaysValid(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewAtCoderAdapter(newTestClient(), testLogger())
	result := adapter.ValidateToken(context.Background(), atcoderTestLink(server.URL))
	if !result.Valid {
		t.Errorf("Valid = false, トークン不要なら常に有効のはず: %s", result.Message)
	}
	if requests != 0 {
		t.Errorf("requests = %d, want 0 (通信せずに判定すべき)", requests)
	}
}

// 問題カタログがpid・問題名・URL付きで取得されることを検証
func TestAtCoderAdapter_FetchProblemCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
  {"id": "abc300_a", "contest_id": "abc300", "title": "A. N-choice question"},
  {"id": "abc300_b", "contest_id": "abc300", "name": "Same Map in the RPG World"}
]`))
	}))
	defer server.Close()

	adapter := NewAtCoderAdapter(newTestClient(), testLogger())
	catalog, err := adapter.FetchProblemCatalog(context.Background(), atcoderTestLink(server.URL))
	if err != nil {
		t.Fatalf("FetchProblemCatalog failed: %v", err)
	}

	if len(catalog) != 2 {
		t.Fatalf("len(catalog) = %d, want 2", len(catalog))
	}
	if catalog[0].Pid != "abc300_a" {
		t.Errorf("Pid = %q, want %q", catalog[0].Pid, "abc300_a")
	}
	// nameが空の場合はtitleで補う
	if catalog[0].Name != "A. N-choice question" {
		t.Errorf("Name = %q", catalog[0].Name)
	}
	if catalog[1].Name != "Same Map in the RPG World" {
		t.Errorf("Name = %q", catalog[1].Name)
	}
}
