package password

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBreachBaseURL = "https://api.pwnedpasswords.com"

// BreachChecker はk-匿名性方式の漏洩パスワードチェックを提供する。
// パスワードのSHA-1ハッシュの先頭5文字のみをAPIに送信し、
// 返却されたサフィックス一覧とローカルで照合する。
// 完全なハッシュがネットワークに流れることはない。
type BreachChecker struct {
	baseURL string
	client  *http.Client
}

// NewBreachChecker はBreachCheckerを生成する。
// baseURLが空の場合は既定のAPIを使用する。
// timeoutが0の場合は5秒を使用する。
func NewBreachChecker(baseURL string, timeout time.Duration) *BreachChecker {
	if baseURL == "" {
		baseURL = defaultBreachBaseURL
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &BreachChecker{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// IsBreached はパスワードが既知の漏洩データに含まれるかを確認する。
// APIへの到達失敗・タイムアウト・非200応答はfail-open（未漏洩扱い）とし、
// 警告ログのみ残す。明示的なサフィックス一致の場合のみtrueを返す。
func (c *BreachChecker) IsBreached(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	hash := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := hash[:5], hash[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create breach check request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("breach check request failed, treating as not breached",
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("breach check returned non-200, treating as not breached",
			slog.Int("status", resp.StatusCode),
		)
		return false, nil
	}

	// レスポンスは "SUFFIX:COUNT" の行の列
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		got, _, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(got), suffix) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("breach check response read failed, treating as not breached",
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	return false, nil
}
