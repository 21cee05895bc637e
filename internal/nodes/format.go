package nodes

import (
	"errors"
	"fmt"
	"strings"

	"ruwave_bot/internal/services"
	"ruwave_bot/pkg"
)

// User-facing replies. The station speaks Russian first.
const (
	noPriceReply      = "💰 Информацию о ценах уточняйте у менеджера RuWave 94FM."
	noTimeWindowReply = "🤔 Не получилось понять дату или время. Спросите, например: «что играло вчера в 21:00?»"
	noSongsReply      = "🎵 На %s записей эфира RuWave 94FM не найдено."
)

var errNoPriceEntry = errors.New("price entry missing for price intent")

// FormatPrice returns the price text verbatim behind a marker
func FormatPrice(entry pkg.PriceEntry) string {
	return "💰 " + entry.PriceText
}

// FormatRecord renders one airing as a reply line
func FormatRecord(r pkg.PlaylistRecord) string {
	return fmt.Sprintf("%s — %s (👍 %d / 👎 %d)", r.AirTime, r.Title, r.Likes, r.Dislikes)
}

func describeWindow(w pkg.TimeWindow) string {
	if w.IsPoint() {
		return fmt.Sprintf("%s в %s", w.Date, w.Start)
	}
	if w.Start == 0 && w.End == pkg.EndOfDay {
		return w.Date.String()
	}
	return fmt.Sprintf("%s с %s до %s", w.Date, w.Start, w.End)
}

// FormatLookup renders a lookup result, listing at most limit records
func FormatLookup(res services.LookupResult, limit int) string {
	if res.Empty() {
		return fmt.Sprintf(noSongsReply, describeWindow(res.Window))
	}

	var b strings.Builder
	if res.Closest {
		r := res.Records[0]
		fmt.Fprintf(&b, "🎵 Точной записи на %s нет. Ближайшая по времени:\n", describeWindow(res.Window))
		if !r.AirDate.Equal(res.Window.Date) {
			fmt.Fprintf(&b, "%s ", r.AirDate)
		}
		b.WriteString(FormatRecord(r))
		return b.String()
	}

	fmt.Fprintf(&b, "🎵 В эфире RuWave 94FM %s:", describeWindow(res.Window))
	shown := res.Records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		b.WriteString("\n")
		b.WriteString(FormatRecord(r))
	}
	if rest := len(res.Records) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n…и ещё %d", rest)
	}
	return b.String()
}
