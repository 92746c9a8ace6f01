// Package normalize はリモートレコードの正規化を提供する。
// シート側の任意のキー表記・型を正準のListingへ変換する。
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// timePlaceholder は時刻が欠損している場合の表示プレースホルダ。
const timePlaceholder = "--:--"

// defaultDuration はリモート側のテンプレート既定値として混入することがある所要時間。
// この値はそのまま信用せず、出発・到着時刻から再計算する。
const defaultDuration = "6h 00m"

// aliases は正準キーごとに許容するシート側キーのテーブル。
// キー照合は exact → 正規化exact → alias の優先順で行う。
// 条件分岐に散らさずデータとして保持する。
var aliases = map[string][]string{
	"trainNumber":   {"trainno", "no", "number", "trainnumber", "slno", "trainnum"},
	"fromStation":   {"source", "from", "origin", "start", "boarding", "src"},
	"toStation":     {"destination", "to", "dest", "end", "arrival", "dst"},
	"classType":     {"class", "coach", "berth", "classtype", "cl"},
	"userContact":   {"phone", "contact", "mobile", "whatsapp", "phone_number"},
	"sellerName":    {"name", "seller", "user", "postedby", "name_of_seller"},
	"price":         {"price", "fare", "cost", "amount", "rate"},
	"departureTime": {"dep", "deptime", "departure", "start_time"},
	"arrivalTime":   {"arr", "arrtime", "arrival", "end_time"},
	"duration":      {"dur", "traveltime", "time", "totaltime"},
}

// TextSanitizer はユーザー入力テキストの無害化インターフェース。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Normalizer はリモートレコードを正準Listingへ変換する。
// 1レコードに対する純粋関数として動作し、副作用を持たない。
type Normalizer struct {
	loc       *time.Location
	sanitizer TextSanitizer
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
// locは正準タイムゾーン（Asia/Kolkata）を指定する。
func NewNormalizer(loc *time.Location, sanitizer TextSanitizer) *Normalizer {
	return &Normalizer{loc: loc, sanitizer: sanitizer}
}

// normalizeKey はキー照合用にキーを小文字化し英数字以外を除去する。
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lookup は正準キーに対応する値をレコードから取り出す。
// exactキー一致 → 正規化キー一致 → aliasテーブル一致の順に探し、
// どれにも該当しなければ (nil, false) を返す。欠損はエラーではない。
func lookup(record map[string]any, targetKey string) (any, bool) {
	if v, ok := record[targetKey]; ok && v != nil {
		return v, true
	}

	normalizedTarget := normalizeKey(targetKey)
	for k, v := range record {
		if v != nil && normalizeKey(k) == normalizedTarget {
			return v, true
		}
	}

	for _, alias := range aliases[targetKey] {
		for k, v := range record {
			if v != nil && normalizeKey(k) == alias {
				return v, true
			}
		}
	}

	return nil, false
}

// stringValue は値の文字列表現を返す。数値のゴミ（"12345.0"など）を避けるため
// float64は整数であれば整数表記にする。
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// fieldString は正準キーの値を文字列として取り出す。欠損時は空文字列。
func fieldString(record map[string]any, key string) string {
	v, ok := lookup(record, key)
	if !ok {
		return ""
	}
	return stringValue(v)
}

// FormatTime は時刻フィールドをHH:mm形式へ正規化する。
// 日時セパレータを含む場合はタイムスタンプとしてパースし正準タイムゾーンで描画、
// H:mm様のパターンで始まる場合は時をゼロ埋め、
// "undefined"/"null"はプレースホルダへ置換する。それ以外はそのまま通す。
func (n *Normalizer) FormatTime(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return timePlaceholder
	}

	if strings.Contains(s, "T") {
		if t, err := parseTimestamp(s); err == nil {
			return t.In(n.loc).Format("15:04")
		}
	}

	if hhmm, ok := leadingClockTime(s); ok {
		return hhmm
	}

	if s == "undefined" || s == "null" {
		return timePlaceholder
	}
	return s
}

// leadingClockTime は文字列先頭の H:mm / HH:mm パターンを取り出し、
// 時をゼロ埋めして返す。該当しなければ ("", false)。
func leadingClockTime(s string) (string, bool) {
	colon := strings.Index(s, ":")
	if colon != 1 && colon != 2 {
		return "", false
	}
	hour := s[:colon]
	if _, err := strconv.Atoi(hour); err != nil {
		return "", false
	}
	rest := s[colon+1:]
	if len(rest) < 2 {
		return "", false
	}
	minute := rest[:2]
	if _, err := strconv.Atoi(minute); err != nil {
		return "", false
	}
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + minute, true
}

// parseTimestamp は日時セパレータ付きの文字列をタイムスタンプとしてパースする。
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("タイムスタンプとしてパースできません: %q", s)
}

// FormatDate は日付フィールドをYYYY-MM-DD形式へ正規化する。
// 日時セパレータを含む場合はタイムゾーン変換後の日付部分を取り、
// それ以外はセパレータより前の日付部分文字列を取る。
func (n *Normalizer) FormatDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "T") {
		if t, err := parseTimestamp(s); err == nil {
			return t.In(n.loc).Format("2006-01-02")
		}
		return strings.SplitN(s, "T", 2)[0]
	}
	return s
}

// ParsePrice は価格フィールドを数値へ正規化する。
// 数字と小数点以外をすべて除去してから変換し、欠損・変換不能は0を返す。
func ParsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	p, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return p
}

// ParseFlag はフラグフィールドを真偽値へ正規化する。
// 大文字小文字を無視した文字列表現が"true"の場合のみtrue。
func ParseFlag(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// ParseType は掲載種別を分類する。
// 大文字小文字を無視して"REQ"を含む場合はREQUEST、それ以外はOFFER。
func ParseType(raw string) model.ListingType {
	if strings.Contains(strings.ToUpper(raw), "REQ") {
		return model.ListingTypeRequest
	}
	return model.ListingTypeOffer
}

// Record はリモートレコード1件を正準Listingへ変換する。
// indexはid欠損時の生成idに使用する。列車番号が正規化後に空となる
// レコードは有効な掲載と判断できないため (nil, false) を返す。
func (n *Normalizer) Record(record map[string]any, index int) (*model.Listing, bool) {
	trainNumber := fieldString(record, "trainNumber")
	if trainNumber == "" {
		return nil, false
	}

	date := n.FormatDate(fieldString(record, "date"))
	dep := n.FormatTime(fieldString(record, "departureTime"))
	arr := n.FormatTime(fieldString(record, "arrivalTime"))

	duration := fieldString(record, "duration")
	if duration == "" {
		duration = CalculateDuration(dep, arr)
	}

	id := fieldString(record, "id")
	if id == "" {
		id = fmt.Sprintf("gen_%s_%s_%d", trainNumber, date, index)
	}

	userID := fieldString(record, "userId")
	if userID == "" {
		userID = "system"
	}

	trainName := fieldString(record, "trainName")
	if trainName == "" {
		trainName = "Unknown"
	}

	sellerName := fieldString(record, "sellerName")
	if sellerName == "" {
		sellerName = "Anonymous"
	}

	classType := model.TrainClass(fieldString(record, "classType"))
	if classType == "" {
		classType = model.TrainClassSL
	}

	status := model.ListingStatus(fieldString(record, "status"))
	if status == "" {
		status = model.ListingStatusOpen
	}

	createdAt, err := strconv.ParseInt(fieldString(record, "createdAt"), 10, 64)
	if err != nil || createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	return &model.Listing{
		ID:              id,
		UserID:          userID,
		Type:            ParseType(fieldString(record, "type")),
		TrainName:       n.sanitize(trainName),
		TrainNumber:     trainNumber,
		FromStation:     fieldString(record, "fromStation"),
		ToStation:       fieldString(record, "toStation"),
		Date:            date,
		DepartureTime:   dep,
		ArrivalTime:     arr,
		Duration:        duration,
		ClassType:       classType,
		BerthType:       n.sanitize(fieldString(record, "berthType")),
		Price:           ParsePrice(fieldString(record, "price")),
		Status:          status,
		UserContact:     fieldString(record, "userContact"),
		SellerName:      n.sanitize(sellerName),
		Comment:         n.sanitize(fieldString(record, "comment")),
		IsFlexibleDate:  ParseFlag(fieldString(record, "isFlexibleDate")),
		IsFlexibleClass: ParseFlag(fieldString(record, "isFlexibleClass")),
		CreatedAt:       createdAt,
	}, true
}

// sanitize は表示用パススルーフィールドを無害化する。
func (n *Normalizer) sanitize(s string) string {
	if n.sanitizer == nil {
		return s
	}
	return n.sanitizer.SanitizeText(s)
}

// IsDefaultDuration は所要時間がテンプレート既定値かどうかを判定する。
// 既定値はリモート側から漏れた古い値の可能性があるため、
// 出発・到着時刻からの再計算対象となる。
func IsDefaultDuration(duration string) bool {
	return duration == defaultDuration
}
