package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ojtracker/internal/model"
)

const luoguPageOne = `{
  "code": 200,
  "currentData": {
    "records": {
      "count": 2,
      "result": [
        {
          "status": 12,
          "submitTime": 1740000000,
          "problem": {"pid": "P1001", "title": "A+B Problem"}
        },
        {
          "status": 14,
          "submitTime": 1740000100,
          "problem": {"pid": "P1002", "title": "过河卒"}
        }
      ]
    }
  }
}`

const luoguEmptyPage = `{
  "code": 200,
  "currentData": {"records": {"count": 2, "result": []}}
}`

func luoguTestLink(serverURL, token string) *model.PlatformLink {
	return &model.PlatformLink{
		Platform:      model.PlatformLuogu,
		UserInfoLink:  serverURL + "/record/list?user=%s&page=%d&_contentOnly=1",
		ProblemLink:   "https://www.luogu.com.cn/problem/%s",
		AuthToken:     token,
		TokenFormat:   "__client_id=xxx; _uid=xxx",
		RequiresToken: true,
	}
}

// ページ送りで全提出が取得され、Cookieが送られることを検証
func TestLuoguAdapter_FetchAttempts_Pagination(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(luoguPageOne))
			return
		}
		w.Write([]byte(luoguEmptyPage))
	}))
	defer server.Close()

	adapter := NewLuoguAdapter(newTestClient(), testLogger())
	link := luoguTestLink(server.URL, "__client_id=abc; _uid=12345")
	attempts, err := adapter.FetchAttempts(context.Background(), link, "12345")
	if err != nil {
		t.Fatalf("FetchAttempts failed: %v", err)
	}

	if gotCookie != "__client_id=abc; _uid=12345" {
		t.Errorf("Cookie = %q", gotCookie)
	}
	if len(attempts) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(attempts))
	}
	if attempts[0].Pid != "P1001" || attempts[0].Verdict != model.VerdictAC {
		t.Errorf("attempts[0] = %+v", attempts[0])
	}
	if attempts[1].Verdict != model.VerdictTLE {
		t.Errorf("attempts[1].Verdict = %q, want TLE", attempts[1].Verdict)
	}
	if !attempts[0].AttemptAt.Equal(time.Unix(1740000000, 0).UTC()) {
		t.Errorf("AttemptAt = %v", attempts[0].AttemptAt)
	}
}

// HTML応答（ログインページ）がTOKEN_EXPIREDとして分類されることを検証
func TestLuoguAdapter_FetchAttempts_HTMLResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><title>登录</title></html>`)
	}))
	defer server.Close()

	adapter := NewLuoguAdapter(newTestClient(), testLogger())
	link := luoguTestLink(server.URL, "__client_id=stale; _uid=1")
	_, err := adapter.FetchAttempts(context.Background(), link, "1")
	if !model.IsTokenExpired(err) {
		t.Errorf("expected TOKEN_EXPIRED, got %v", err)
	}
}

// APIコード401/403がTOKEN_EXPIREDとして分類されることを検証
func TestLuoguAdapter_FetchAttempts_AuthCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 403, "message": "Forbidden"}`))
	}))
	defer server.Close()

	adapter := NewLuoguAdapter(newTestClient(), testLogger())
	link := luoguTestLink(server.URL, "__client_id=stale; _uid=1")
	_, err := adapter.FetchAttempts(context.Background(), link, "1")
	if !model.IsTokenExpired(err) {
		t.Errorf("expected TOKEN_EXPIRED, got %v", err)
	}
}

// トークン未設定はネットワークアクセスなしで失効エラーになることを検証
func TestLuoguAdapter_FetchAttempts_MissingToken(t *testing.T) {
	adapter := NewLuoguAdapter(newTestClient(), testLogger())
	link := luoguTestLink("http://unused.invalid", "")
	_, err := adapter.FetchAttempts(context.Background(), link, "1")
	if !model.IsTokenExpired(err) {
		t.Errorf("expected TOKEN_EXPIRED, got %v", err)
	}
}

// ValidateTokenが正常応答でValid=trueを返すことを検証
func TestLuoguAdapter_ValidateToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(luoguEmptyPage))
	}))
	defer server.Close()

	adapter := NewLuoguAdapter(newTestClient(), testLogger())
	result := adapter.ValidateToken(context.Background(), luoguTestLink(server.URL, "__client_id=abc; _uid=1"))
	if !result.Valid {
		t.Errorf("Valid = false, message: %s", result.Message)
	}
}
