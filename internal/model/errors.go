package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// バリデーションエラーの場合はFieldsにフィールド単位のメッセージを持つ。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, cart, order, catalog, content, upstream, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位のエラーメッセージ（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// StatusCode はエラーコードに対応するHTTPステータスコードを返す。
func (e *APIError) StatusCode() int {
	switch e.Code {
	case ErrCodeProductNotFound, ErrCodeOrderNotFound, ErrCodeCartItemNotFound, ErrCodePageNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidCredentials, ErrCodeSessionRequired:
		return http.StatusUnauthorized
	case ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// 定義済みエラーコード
const (
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeSessionRequired     = "SESSION_REQUIRED"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeBreachedPassword    = "BREACHED_PASSWORD"
	ErrCodeOAuthStateMismatch  = "OAUTH_STATE_MISMATCH"
	ErrCodeProviderConflict    = "PROVIDER_CONFLICT"
	ErrCodeResetTokenInvalid   = "RESET_TOKEN_INVALID"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeCartItemNotFound    = "CART_ITEM_NOT_FOUND"
	ErrCodeCartEmpty           = "CART_EMPTY"
	ErrCodeInvalidDiscount     = "INVALID_DISCOUNT"
	ErrCodeInvalidAddress      = "INVALID_ADDRESS"
	ErrCodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	ErrCodeOrderNotFound       = "ORDER_NOT_FOUND"
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodePageNotFound        = "PAGE_NOT_FOUND"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeUpstreamFailed      = "UPSTREAM_FAILED"
)

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスをお使いください。",
		Fields:   map[string]string{"email": "already registered"},
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewSessionRequiredError は未認証エラーを生成する。
func NewSessionRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionRequired,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードが要件を満たしていません: %s", reason),
		Category: "validation",
		Action:   "8文字以上255文字以下のパスワードを設定してください。",
		Fields:   map[string]string{"password": reason},
	}
}

// NewBreachedPasswordError は漏洩済みパスワードのエラーを生成する。
func NewBreachedPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeBreachedPassword,
		Message:  "このパスワードは過去の情報漏洩で確認されています。",
		Category: "validation",
		Action:   "他のサービスで使用していない別のパスワードを設定してください。",
		Fields:   map[string]string{"password": "found in a known data breach"},
	}
}

// NewOAuthStateMismatchError はOAuth stateパラメータ不一致のエラーを生成する。
func NewOAuthStateMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthStateMismatch,
		Message:  "認証リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "最初からログインをやり直してください。",
	}
}

// NewProviderConflictError は別プロバイダーで登録済みのメールアドレスに対する
// OAuthログインのエラーを生成する。アカウントの自動リンクは行わない。
// Fieldsには既存プロバイダー名を載せ、呼び出し側が案内に使えるようにする。
func NewProviderConflictError(existingProvider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderConflict,
		Message:  fmt.Sprintf("このメールアドレスは %s アカウントで登録されています。", existingProvider),
		Category: "auth",
		Action:   fmt.Sprintf("%s でログインしてください。", existingProvider),
		Fields:   map[string]string{"provider": existingProvider},
	}
}

// NewResetTokenInvalidError は無効・期限切れ・使用済みの
// パスワード再設定トークンのエラーを生成する。
func NewResetTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeResetTokenInvalid,
		Message:  "パスワード再設定リンクが無効か、期限が切れています。",
		Category: "auth",
		Action:   "パスワード再設定を最初からやり直してください。",
	}
}

// NewInsufficientStockError は在庫不足エラーを生成する。
func NewInsufficientStockError(requested, available int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientStock,
		Message:  fmt.Sprintf("在庫が不足しています（希望数量: %d、在庫: %d）。", requested, available),
		Category: "cart",
		Action:   "数量を減らすか、再入荷をお待ちください。",
	}
}

// NewInvalidQuantityError は無効な数量のエラーを生成する。
func NewInvalidQuantityError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  "数量は1以上で指定してください。",
		Category: "validation",
		Action:   "数量を確認して再度お試しください。",
	}
}

// NewCartItemNotFoundError はカート内に該当アイテムがない場合のエラーを生成する。
func NewCartItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartItemNotFound,
		Message:  fmt.Sprintf("カート内に該当する商品が見つかりません: %s", itemID),
		Category: "cart",
		Action:   "カートの内容を再読み込みしてください。",
	}
}

// NewCartEmptyError は空のカートに対するチェックアウトのエラーを生成する。
func NewCartEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeCartEmpty,
		Message:  "カートが空です。",
		Category: "cart",
		Action:   "商品をカートに追加してからチェックアウトしてください。",
	}
}

// NewInvalidDiscountError は無効・適用不可の割引コードのエラーを生成する。
func NewInvalidDiscountError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDiscount,
		Message:  fmt.Sprintf("割引コードが無効か、適用条件を満たしていません: %s", code),
		Category: "cart",
		Action:   "コードのつづりと適用条件を確認してください。",
	}
}

// NewInvalidAddressError は配送先住所のバリデーションエラーを生成する。
// fieldsには不足・不正なフィールドごとのメッセージを渡す。
func NewInvalidAddressError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAddress,
		Message:  "配送先住所に不備があります。",
		Category: "validation",
		Action:   "必須項目をすべて入力してください。",
		Fields:   fields,
	}
}

// NewInvalidTransitionError は許可されていない注文ステータス遷移のエラーを生成する。
func NewInvalidTransitionError(from, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("注文ステータスを %s から %s に変更することはできません。", from, to),
		Category: "order",
		Action:   "現在の注文ステータスを確認してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "order",
		Action:   "注文番号を確認してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", slug),
		Category: "catalog",
		Action:   "商品一覧から商品を選び直してください。",
	}
}

// NewPageNotFoundError はコンテンツページ未検出エラーを生成する。
func NewPageNotFoundError(page string) *APIError {
	return &APIError{
		Code:     ErrCodePageNotFound,
		Message:  fmt.Sprintf("指定されたページが見つかりません: %s", page),
		Category: "content",
		Action:   "URLを確認してください。",
	}
}

// NewValidationError は汎用のフォームバリデーションエラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に不備があります。",
		Category: "validation",
		Action:   "エラーのあるフィールドを修正してください。",
		Fields:   fields,
	}
}

// NewUpstreamFailedError は外部サービス呼び出し失敗のエラーを生成する。
// 詳細はログにのみ残し、ユーザーには一般的なメッセージを返す。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "外部サービスとの通信に失敗しました。",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
