package aggregate

import (
	"fmt"
	"sort"
	"strings"
)

// Rollup holds the recomputed aggregates of one collection.
type Rollup struct {
	CollectionID int64
	// Identifier is the collection's smallest external identifier, or its
	// numeric id when it has none.
	Identifier      string
	CumulativeSize  int64
	CumulativeCount int64
	SingleBinary    bool
	// Licenses and Access map a language tag to the rendered summary.
	Licenses map[string]string
	Access   map[string]string
}

type valueCount struct {
	value string
	count int
}

// renderSummaries turns category counts into one "value: count" summary per
// collection and language. Every language in langs gets an entry for every
// id, empty when nothing qualifies. Untagged labels count for every
// language.
func renderSummaries(ids []int64, counts []CategoryCount, langs []string) map[int64]map[string]string {
	grouped := make(map[int64]map[string]map[string]int)
	add := func(id int64, lang, value string, n int) {
		if grouped[id] == nil {
			grouped[id] = make(map[string]map[string]int)
		}
		if grouped[id][lang] == nil {
			grouped[id][lang] = make(map[string]int)
		}
		grouped[id][lang][value] += n
	}
	for _, c := range counts {
		if c.Lang == "" {
			for _, lang := range langs {
				add(c.CollectionID, lang, c.Value, c.Count)
			}
			continue
		}
		add(c.CollectionID, c.Lang, c.Value, c.Count)
	}

	out := make(map[int64]map[string]string, len(ids))
	for _, id := range ids {
		byLang := make(map[string]string)
		for _, lang := range langs {
			byLang[lang] = ""
		}
		for lang, values := range grouped[id] {
			byLang[lang] = renderCounts(values)
		}
		out[id] = byLang
	}
	return out
}

// renderCounts orders by descending count, then value.
func renderCounts(values map[string]int) string {
	list := make([]valueCount, 0, len(values))
	for v, n := range values {
		list = append(list, valueCount{value: v, count: n})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].value < list[j].value
	})
	lines := make([]string, len(list))
	for i, vc := range list {
		lines[i] = fmt.Sprintf("%s: %d", vc.value, vc.count)
	}
	return strings.Join(lines, "\n")
}

// flatten lays a per-collection summary map out as parallel column slices
// for a bulk insert, ordered by id then language.
func flatten(summaries map[int64]map[string]string) (ids []int64, langs, values []string) {
	keys := make([]int64, 0, len(summaries))
	for id := range summaries {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, id := range keys {
		ls := make([]string, 0, len(summaries[id]))
		for lang := range summaries[id] {
			ls = append(ls, lang)
		}
		sort.Strings(ls)
		for _, lang := range ls {
			ids = append(ids, id)
			langs = append(langs, lang)
			values = append(values, summaries[id][lang])
		}
	}
	return ids, langs, values
}
