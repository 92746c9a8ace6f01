// Package discovery は掲載集合に対する多段絞り込みパイプラインと、
// 非同期のルート分類を提供する。各ステップは前段の出力のみを狭め、
// 集合を広げることはない。
package discovery

import (
	"sort"
	"strings"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// minRouteQueryLen はルート分類結果が空のときに部分一致フォールバックを
// 許可する最小のクエリ長。これに満たない短いクエリは曖昧すぎるため、
// 絞り込まずに全件を通す。
const minRouteQueryLen = 4

// Criteria は1回の絞り込みに使う検索・フィルタ状態をすべて保持する。
// 各フィールドは独立しており、ゼロ値はそのステップの無効化を意味する。
type Criteria struct {
	// Query は自由テキスト検索クエリ。
	Query string
	// SemanticIDs は意味検索で得たID集合。nilは「意味検索が未実行」を
	// 表し、空スライスは「実行したが一致なし」を表す。
	SemanticIDs []string
	// FromStation / ToStation はルート検索の出発・到着文字列。
	FromStation string
	ToStation   string
	// Routes はルート分類コラボレータの結果。nilは未分類を表す。
	Routes *model.RouteMatches
	// Type は掲載種別フィルタ。空文字列は全種別。
	Type model.ListingType
	// Classes は等級フィルタ。空は全等級。
	Classes []model.TrainClass
	// Date は乗車日の完全一致フィルタ（YYYY-MM-DD）。空は無効。
	Date string
	// MineOnly が真のとき、ViewerIDの掲載のみを残す。
	MineOnly bool
	ViewerID string
	// Strength はルート一致強度フィルタ。ゼロ値はALL扱い。
	Strength model.MatchStrength
	// Sort はソートキー。ゼロ値はDATE扱い。
	Sort model.SortKey
}

// Apply は絞り込みステップを順に適用した結果集合を返す。
// 入力スライスは変更しない。
func Apply(listings []model.Listing, c Criteria) []model.Listing {
	result := make([]model.Listing, len(listings))
	copy(result, listings)

	result = filterSearch(result, c)
	result = filterRoute(result, c)
	result = filterType(result, c)
	result = filterClass(result, c)
	result = filterDate(result, c)
	result = filterMine(result, c)
	sortListings(result, c.Sort)

	return result
}

// filterSearch はテキスト部分一致と意味検索結果の和集合で絞り込む。
func filterSearch(listings []model.Listing, c Criteria) []model.Listing {
	query := strings.TrimSpace(strings.ToLower(c.Query))
	if query == "" {
		return listings
	}

	keep := make(map[string]bool, len(listings))
	for _, l := range listings {
		if matchesText(l, query) {
			keep[l.ID] = true
		}
	}
	// 意味検索が実行済みなら、その一致をIDで重複排除しつつ合流させる
	for _, id := range c.SemanticIDs {
		keep[id] = true
	}

	out := listings[:0]
	for _, l := range listings {
		if keep[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func matchesText(l model.Listing, query string) bool {
	return strings.Contains(strings.ToLower(l.TrainName), query) ||
		strings.Contains(strings.ToLower(l.TrainNumber), query) ||
		strings.Contains(strings.ToLower(l.FromStation), query) ||
		strings.Contains(strings.ToLower(l.ToStation), query)
}

// filterRoute は出発・到着文字列と分類結果でルート絞り込みを行う。
func filterRoute(listings []model.Listing, c Criteria) []model.Listing {
	from := strings.TrimSpace(strings.ToLower(c.FromStation))
	to := strings.TrimSpace(strings.ToLower(c.ToStation))

	if from == "" && to == "" {
		return listings
	}

	// 片側だけの指定は分類を使わず単一フィールドの部分一致
	if from == "" || to == "" {
		out := listings[:0]
		for _, l := range listings {
			if from != "" && strings.Contains(strings.ToLower(l.FromStation), from) {
				out = append(out, l)
			} else if to != "" && strings.Contains(strings.ToLower(l.ToStation), to) {
				out = append(out, l)
			}
		}
		return out
	}

	// 分類が未到着の間はルートでの絞り込みを保留し、全件を通す
	if c.Routes == nil {
		return listings
	}

	exact, partial := routeSets(c.Routes)
	strength := c.Strength
	if strength == "" {
		strength = model.MatchStrengthAll
	}

	out := listings[:0]
	switch strength {
	case model.MatchStrengthExact:
		for _, l := range listings {
			if exact[l.ID] {
				out = append(out, l)
			}
		}
	case model.MatchStrengthPartial:
		for _, l := range listings {
			if partial[l.ID] {
				out = append(out, l)
			}
		}
	default:
		if len(exact) > 0 || len(partial) > 0 {
			for _, l := range listings {
				if exact[l.ID] || partial[l.ID] {
					out = append(out, l)
				}
			}
			return out
		}
		// 分類結果が空のとき、十分に長いクエリなら素の部分一致へ
		// フォールバックし、短いクエリは絞り込まずに通す
		if len(from) < minRouteQueryLen || len(to) < minRouteQueryLen {
			return listings
		}
		for _, l := range listings {
			if strings.Contains(strings.ToLower(l.FromStation), from) &&
				strings.Contains(strings.ToLower(l.ToStation), to) {
				out = append(out, l)
			}
		}
	}
	return out
}

func routeSets(routes *model.RouteMatches) (exact, partial map[string]bool) {
	exact = map[string]bool{}
	partial = map[string]bool{}
	if routes == nil {
		return exact, partial
	}
	for _, id := range routes.Exact {
		exact[id] = true
	}
	for _, id := range routes.Partial {
		partial[id] = true
	}
	return exact, partial
}

func filterType(listings []model.Listing, c Criteria) []model.Listing {
	// "ALL" は種別フィルタ無効を表す中立値
	if c.Type == "" || c.Type == "ALL" {
		return listings
	}
	out := listings[:0]
	for _, l := range listings {
		if l.Type == c.Type {
			out = append(out, l)
		}
	}
	return out
}

// filterClass は等級で絞り込む。isFlexibleClassなREQUEST掲載は
// どの等級フィルタにも一致する。
func filterClass(listings []model.Listing, c Criteria) []model.Listing {
	if len(c.Classes) == 0 {
		return listings
	}
	selected := make(map[model.TrainClass]bool, len(c.Classes))
	for _, cl := range c.Classes {
		selected[cl] = true
	}
	out := listings[:0]
	for _, l := range listings {
		if selected[l.ClassType] ||
			(l.Type == model.ListingTypeRequest && l.IsFlexibleClass) {
			out = append(out, l)
		}
	}
	return out
}

func filterDate(listings []model.Listing, c Criteria) []model.Listing {
	if c.Date == "" {
		return listings
	}
	out := listings[:0]
	for _, l := range listings {
		if l.Date == c.Date {
			out = append(out, l)
		}
	}
	return out
}

func filterMine(listings []model.Listing, c Criteria) []model.Listing {
	if !c.MineOnly {
		return listings
	}
	out := listings[:0]
	for _, l := range listings {
		if l.UserID == c.ViewerID {
			out = append(out, l)
		}
	}
	return out
}

// sortListings は選択されたキーで安定ソートする。
func sortListings(listings []model.Listing, key model.SortKey) {
	switch key {
	case model.SortKeyPriceAsc:
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Price < listings[j].Price
		})
	case model.SortKeyPriceDesc:
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Price > listings[j].Price
		})
	default:
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Date < listings[j].Date
		})
	}
}

// MatchType は表示用の一致分類を返す。EXACTをPARTIALより優先して判定し、
// どちらにも属さない場合は空文字列を返す。
func MatchType(id string, routes *model.RouteMatches) model.MatchStrength {
	if routes == nil {
		return ""
	}
	for _, e := range routes.Exact {
		if e == id {
			return model.MatchStrengthExact
		}
	}
	for _, p := range routes.Partial {
		if p == id {
			return model.MatchStrengthPartial
		}
	}
	return ""
}
