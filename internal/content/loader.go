// Package content は静的ページのローカライズ済みコンテンツを提供する。
// ページはMarkdownで管理し、起動時にHTMLへ変換してメモリに保持する。
package content

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hitoshi/keebstore/internal/model"
)

//go:embed pages/*/*.md
var pagesFS embed.FS

// Section はページ内の1セクション（h2見出しで区切られた単位）。
type Section struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Page は変換済みの静的ページを表す。
type Page struct {
	Slug     string    `json:"slug"`
	Locale   string    `json:"locale"`
	Title    string    `json:"title"`
	HTML     string    `json:"html"`
	Sections []Section `json:"sections"`
}

// Loader はロケール別の静的ページを提供する。
// すべてのページは起動時に変換・サニタイズ済みのため、Getは割り当てを伴わない。
type Loader struct {
	defaultLocale string
	pages         map[string]map[string]*Page // locale -> slug -> page
}

var (
	h1Pattern = regexp.MustCompile(`(?s)<h1[^>]*>(.*?)</h1>`)
	h2Pattern = regexp.MustCompile(`(?s)<h2[^>]*>(.*?)</h2>`)
	tagStrip  = regexp.MustCompile(`<[^>]+>`)
)

// NewLoader は埋め込みMarkdownを読み込み、変換済みのLoaderを返す。
// 不正なMarkdownやディレクトリ構成はこの時点でエラーになる。
func NewLoader(defaultLocale string) (*Loader, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy := bluemonday.UGCPolicy()

	loader := &Loader{
		defaultLocale: defaultLocale,
		pages:         make(map[string]map[string]*Page),
	}

	err := fs.WalkDir(pagesFS, "pages", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}

		// pages/<locale>/<slug>.md
		parts := strings.Split(p, "/")
		if len(parts) != 3 {
			return fmt.Errorf("unexpected content path: %s", p)
		}
		locale := parts[1]
		slug := strings.TrimSuffix(path.Base(p), ".md")

		raw, err := pagesFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read content %s: %w", p, err)
		}

		var buf bytes.Buffer
		if err := md.Convert(raw, &buf); err != nil {
			return fmt.Errorf("failed to render content %s: %w", p, err)
		}

		html := policy.Sanitize(buf.String())
		page := &Page{
			Slug:     slug,
			Locale:   locale,
			Title:    extractTitle(html),
			HTML:     html,
			Sections: splitSections(html),
		}

		if loader.pages[locale] == nil {
			loader.pages[locale] = make(map[string]*Page)
		}
		loader.pages[locale][slug] = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, ok := loader.pages[defaultLocale]; !ok {
		return nil, fmt.Errorf("no content for default locale %q", defaultLocale)
	}

	return loader, nil
}

// Get は指定ロケールのページを返す。ロケールに翻訳が無い場合は
// 既定ロケールにフォールバックし、それでも無ければドメインエラーを返す。
func (l *Loader) Get(locale, slug string) (*Page, error) {
	if pages, ok := l.pages[locale]; ok {
		if page, ok := pages[slug]; ok {
			return page, nil
		}
	}
	if page, ok := l.pages[l.defaultLocale][slug]; ok {
		return page, nil
	}
	return nil, model.NewPageNotFoundError(slug)
}

// Slugs は既定ロケールで提供しているページのスラッグ一覧を返す。
func (l *Loader) Slugs() []string {
	slugs := make([]string, 0, len(l.pages[l.defaultLocale]))
	for slug := range l.pages[l.defaultLocale] {
		slugs = append(slugs, slug)
	}
	return slugs
}

// HasLocale はロケールのコンテンツが存在するかを返す。
func (l *Loader) HasLocale(locale string) bool {
	_, ok := l.pages[locale]
	return ok
}

// extractTitle は最初のh1見出しのテキストを返す。
func extractTitle(html string) string {
	m := h1Pattern.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(tagStrip.ReplaceAllString(m[1], ""))
}

// splitSections はHTMLをh2見出しごとのセクションに分割する。
// 最初のh2より前の部分（リード文）はセクションに含めない。
func splitSections(html string) []Section {
	locs := h2Pattern.FindAllStringSubmatchIndex(html, -1)
	if len(locs) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(locs))
	for i, loc := range locs {
		title := strings.TrimSpace(tagStrip.ReplaceAllString(html[loc[2]:loc[3]], ""))
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, Section{
			Title: title,
			HTML:  strings.TrimSpace(html[loc[0]:end]),
		})
	}
	return sections
}
