package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/doyensec/safeurl"
	"github.com/microcosm-cc/bluemonday"
)

// defaultUserAgent は外部プラットフォームへのリクエストで名乗るUA。
// ブラウザ偽装が必要なプラットフォーム（LeetCode等）はアダプタ側で上書きする。
const defaultUserAgent = "OJTracker/1.0"

// ErrDecode は応答ボディのデコード失敗を示す。
// アダプタはこのセンチネルでネットワークエラーと解析エラーを区別する。
var ErrDecode = errors.New("応答のデコードに失敗しました")

// allowedSchemes は外向きリクエストで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// NewSafeHTTPClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlによりプライベートIP、ループバック、リンクローカル、メタデータIPへの
// リクエストがブロックされる。DNS再バインディング攻撃への対策も有効化される。
// クロールURLはDB上のリンク設定から来るため、設定を書き換えられた場合の
// 内部ネットワーク到達をここで遮断する。
func NewSafeHTTPClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// Client は全アダプタが共有するHTTPフェッチ層。
// 応答サイズ制限と取得テキストのサニタイズを一元化する。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	sanitizer   *bluemonday.Policy
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはNewSafeHTTPClientの生成物を渡す（テストでは素のクライアントで可）。
func NewClient(httpClient *http.Client, logger *slog.Logger, maxBodySize int64) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		sanitizer:   bluemonday.StrictPolicy(),
		maxBodySize: maxBodySize,
	}
}

// GetJSON はGETリクエストを送り、JSON応答をvにデコードする。
// デコード失敗はErrDecodeでラップして返す。
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	body, err := c.fetch(ctx, http.MethodGet, rawURL, headers, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// PostJSON はJSONペイロードをPOSTし、応答をvにデコードする。
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, payload []byte, v any) error {
	merged := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for k, val := range headers {
		merged[k] = val
	}
	body, err := c.fetch(ctx, http.MethodPost, rawURL, merged, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// GetRaw はGETリクエストを送り、応答ボディをそのまま返す。
// JSONかHTMLかを応答を見て判断する必要があるプラットフォーム用。
func (c *Client) GetRaw(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return c.fetch(ctx, http.MethodGet, rawURL, headers, nil)
}

// GetDocument はGETリクエストを送り、HTML応答をgoqueryドキュメントとして返す。
func (c *Client) GetDocument(ctx context.Context, rawURL string, headers map[string]string) (*goquery.Document, error) {
	body, err := c.fetch(ctx, http.MethodGet, rawURL, headers, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return doc, nil
}

// CleanText はスクレイプしたテキストからHTMLタグを除去し、空白を正規化する。
// 問題名はそのまま射影やフロントエンドに流れるため、ここで必ず通す。
func (c *Client) CleanText(s string) string {
	return strings.TrimSpace(c.sanitizer.Sanitize(s))
}

// fetch はHTTPリクエストを実行し、サイズ制限付きでボディを読み取る。
func (c *Client) fetch(ctx context.Context, method, rawURL string, headers map[string]string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("外部プラットフォームへのリクエストに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("外部プラットフォームがエラーステータスを返しました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("ステータス %d が返されました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("応答ボディの読み取りに失敗しました: %w", err)
	}
	return body, nil
}
