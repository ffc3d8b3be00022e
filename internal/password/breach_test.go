package password

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// sha1Parts はテスト用にパスワードのSHA-1プレフィックスとサフィックスを返す。
func sha1Parts(password string) (prefix, suffix string) {
	sum := sha1.Sum([]byte(password))
	hash := strings.ToUpper(fmt.Sprintf("%x", sum))
	return hash[:5], hash[5:]
}

// TestIsBreached_MatchingSuffix はサフィックスが一致した場合に
// 漏洩ありと判定されることを検証する。
func TestIsBreached_MatchingSuffix(t *testing.T) {
	const pw = "password123"
	prefix, suffix := sha1Parts(pw)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Path; got != "/range/"+prefix {
			t.Errorf("リクエストパス = %s, want /range/%s", got, prefix)
		}
		if r.Header.Get("Add-Padding") != "true" {
			t.Error("Add-Paddingヘッダーが設定されていない")
		}
		fmt.Fprintf(w, "0000000000000000000000000000000000A:3\r\n%s:1042\r\n", suffix)
	}))
	defer server.Close()

	checker := NewBreachChecker(server.URL, time.Second)

	breached, err := checker.IsBreached(context.Background(), pw)
	if err != nil {
		t.Fatalf("IsBreached() がエラーを返した: %v", err)
	}
	if !breached {
		t.Error("一致するサフィックスがあるのに未漏洩と判定された")
	}
}

// TestIsBreached_NoMatch はサフィックスが一致しない場合に
// 未漏洩と判定されることを検証する。
func TestIsBreached_NoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0000000000000000000000000000000000A:3\r\n0000000000000000000000000000000000B:7\r\n")
	}))
	defer server.Close()

	checker := NewBreachChecker(server.URL, time.Second)

	breached, err := checker.IsBreached(context.Background(), "unique passphrase nobody uses")
	if err != nil {
		t.Fatalf("IsBreached() がエラーを返した: %v", err)
	}
	if breached {
		t.Error("一致するサフィックスがないのに漏洩ありと判定された")
	}
}

// TestIsBreached_ServerError はAPIが5xxを返した場合に
// fail-open（未漏洩扱い・エラーなし）となることを検証する。
func TestIsBreached_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewBreachChecker(server.URL, time.Second)

	breached, err := checker.IsBreached(context.Background(), "any password")
	if err != nil {
		t.Fatalf("fail-openのはずがエラーを返した: %v", err)
	}
	if breached {
		t.Error("APIエラー時に漏洩ありと判定された")
	}
}

// TestIsBreached_NetworkFailure は接続不能な場合に
// fail-open（未漏洩扱い・エラーなし）となることを検証する。
func TestIsBreached_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 即座に閉じて接続エラーを起こす

	checker := NewBreachChecker(server.URL, time.Second)

	breached, err := checker.IsBreached(context.Background(), "any password")
	if err != nil {
		t.Fatalf("fail-openのはずがエラーを返した: %v", err)
	}
	if breached {
		t.Error("接続失敗時に漏洩ありと判定された")
	}
}
