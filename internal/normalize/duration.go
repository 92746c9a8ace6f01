package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// CalculateDuration は2つのHH:mm時刻から所要時間を計算する。
// (到着 - 出発) を分単位で求め、負の場合は24時間を加算する（夜行列車対応）。
// "{h}h {mm}m" 形式で返し、パース失敗時は "0h 00m" を返す。
func CalculateDuration(dep, arr string) string {
	const fallback = "0h 00m"

	depMin, ok := clockMinutes(dep)
	if !ok {
		return fallback
	}
	arrMin, ok := clockMinutes(arr)
	if !ok {
		return fallback
	}

	total := arrMin - depMin
	if total < 0 {
		total += 24 * 60
	}

	return fmt.Sprintf("%dh %02dm", total/60, total%60)
}

// clockMinutes はHH:mm文字列を0時からの経過分へ変換する。
func clockMinutes(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}
