package password

import (
	"encoding/base64"
	"strings"
	"testing"
)

// TestHash_ProducesDecodableBase64 はハッシュがbase64でデコード可能であり、
// ソルト16バイト + 導出鍵32バイトの長さを持つことを検証する。
func TestHash_ProducesDecodableBase64(t *testing.T) {
	encoded, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() がエラーを返した: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("ハッシュがbase64としてデコードできない: %v", err)
	}

	if len(raw) != saltLength+keyLength {
		t.Errorf("デコード後の長さ = %d, want %d", len(raw), saltLength+keyLength)
	}
}

// TestHash_DifferentSaltsForSamePassword は同じパスワードでも
// 呼び出しごとに異なるハッシュが生成されることを検証する。
func TestHash_DifferentSaltsForSamePassword(t *testing.T) {
	first, err := Hash("same password")
	if err != nil {
		t.Fatalf("Hash() がエラーを返した: %v", err)
	}
	second, err := Hash("same password")
	if err != nil {
		t.Fatalf("Hash() がエラーを返した: %v", err)
	}

	if first == second {
		t.Error("同一パスワードのハッシュが一致した（ソルトが機能していない）")
	}
}

// TestVerify_RoundTrip は正しいパスワードの検証が成功し、
// 誤ったパスワードの検証が失敗することを検証する。
func TestVerify_RoundTrip(t *testing.T) {
	encoded, err := Hash("pbt55-keyboard")
	if err != nil {
		t.Fatalf("Hash() がエラーを返した: %v", err)
	}

	if !Verify(encoded, "pbt55-keyboard") {
		t.Error("正しいパスワードの検証に失敗した")
	}
	if Verify(encoded, "pbt55-keyboarD") {
		t.Error("誤ったパスワードの検証が成功した")
	}
}

// TestVerify_MalformedHash は不正な形式のハッシュに対して
// panicせずfalseを返すことを検証する。
func TestVerify_MalformedHash(t *testing.T) {
	cases := []struct {
		name string
		hash string
	}{
		{"base64ではない", "!!not-base64!!"},
		{"短すぎる", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"空文字列", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(tc.hash, "any password") {
				t.Error("不正な形式のハッシュで検証が成功した")
			}
		})
	}
}

// TestValidateLength_Boundaries は長さバリデーションの境界値を検証する。
func TestValidateLength_Boundaries(t *testing.T) {
	cases := []struct {
		name string
		pw   string
		ok   bool
	}{
		{"最小未満", strings.Repeat("a", MinLength-1), false},
		{"最小ちょうど", strings.Repeat("a", MinLength), true},
		{"最大ちょうど", strings.Repeat("a", MaxLength), true},
		{"最大超過", strings.Repeat("a", MaxLength+1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := ValidateLength(tc.pw)
			if ok != tc.ok {
				t.Errorf("ValidateLength(len=%d) = %v, want %v", len(tc.pw), ok, tc.ok)
			}
			if !ok && reason == "" {
				t.Error("不合格時に理由が空")
			}
		})
	}
}
