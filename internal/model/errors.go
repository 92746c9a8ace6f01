package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeListingNotFound    = "LISTING_NOT_FOUND"
	ErrCodeInvalidTrainNumber = "INVALID_TRAIN_NUMBER"
	ErrCodeMissingDate        = "MISSING_DATE"
	ErrCodeInvalidPrice       = "INVALID_PRICE"
	ErrCodeCommentTooLong     = "COMMENT_TOO_LONG"
	ErrCodeSheetUnavailable   = "SHEET_UNAVAILABLE"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeTrainNotFound      = "TRAIN_NOT_FOUND"
)

// NewListingNotFoundError は掲載未検出エラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された掲載が見つかりません: %s", listingID),
		Category: "listing",
		Action:   "掲載IDを確認してください。すでに削除されたか、乗車日を過ぎた可能性があります。",
	}
}

// NewInvalidTrainNumberError は列車番号が5桁でない場合のエラーを生成する。
func NewInvalidTrainNumberError(trainNumber string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTrainNumber,
		Message:  fmt.Sprintf("列車番号が不正です: %q", trainNumber),
		Category: "validation",
		Action:   "5桁の列車番号を入力してください。",
	}
}

// NewMissingDateError は乗車日未指定エラーを生成する。
func NewMissingDateError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingDate,
		Message:  "乗車日は必須です。",
		Category: "validation",
		Action:   "乗車日（YYYY-MM-DD）を指定してください。",
	}
}

// NewInvalidPriceError は価格が不正な場合のエラーを生成する。
func NewInvalidPriceError(price float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrice,
		Message:  fmt.Sprintf("価格が不正です: %v", price),
		Category: "validation",
		Action:   "0より大きい価格を指定してください。",
	}
}

// NewCommentTooLongError はコメントが語数制限を超えた場合のエラーを生成する。
func NewCommentTooLongError(wordCount int) *APIError {
	return &APIError{
		Code:     ErrCodeCommentTooLong,
		Message:  fmt.Sprintf("コメントが長すぎます（%d語）。", wordCount),
		Category: "validation",
		Action:   "コメントは10語以内にしてください。",
	}
}

// NewSheetUnavailableError はシートコラボレータへの操作が失敗した場合のエラーを生成する。
func NewSheetUnavailableError(op string) *APIError {
	return &APIError{
		Code:     ErrCodeSheetUnavailable,
		Message:  fmt.Sprintf("掲載ストアへの操作に失敗しました: %s", op),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この掲載を操作する権限がありません。",
		Category: "auth",
		Action:   "自分が投稿した掲載のみ削除できます。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTrainNotFoundError は列車時刻表の照会に失敗した場合のエラーを生成する。
func NewTrainNotFoundError(trainNumber string) *APIError {
	return &APIError{
		Code:     ErrCodeTrainNotFound,
		Message:  fmt.Sprintf("列車情報が見つかりません: %s", trainNumber),
		Category: "listing",
		Action:   "列車番号を確認するか、時刻を手動で入力してください。",
	}
}
