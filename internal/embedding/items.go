package embedding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/profile"
)

// Item origins recorded in vector metadata.
const (
	OriginProfile = "profile"
	OriginCrawl   = "crawl"
)

// ComposeText joins the highlights with single spaces, appends the detail
// text after one space, and trims the result.
func ComposeText(highlights []string, detail string) string {
	return strings.TrimSpace(strings.Join(highlights, " ") + " " + detail)
}

// ItemFromProfile converts a vision-extracted profile into an embedding item
// keyed by its URL.
func ItemFromProfile(p profile.Profile) Item {
	important := make([]any, 0, len(p.Important))
	for _, v := range p.Important {
		important = append(important, v)
	}
	return Item{
		ID:     p.URL,
		Text:   ComposeText(p.Important, p.AllDetails),
		Origin: OriginProfile,
		Metadata: map[string]any{
			"url":         p.URL,
			"name":        p.Name,
			"important":   important,
			"all_details": p.AllDetails,
		},
	}
}

// ItemFromRecord converts a crawled record into an embedding item keyed by
// the record's canonical key. The URL, when known, travels in the metadata.
// Field values are embedded in field-name order.
func ItemFromRecord(r crawler.Record) Item {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]string, 0, len(names))
	meta := map[string]any{"key": r.Key}
	if r.URL != "" {
		meta["url"] = r.URL
	}
	for _, name := range names {
		values = append(values, r.Fields[name])
		meta[name] = r.Fields[name]
	}

	return Item{ID: r.Key, Text: ComposeText(values, ""), Origin: OriginCrawl, Metadata: meta}
}

// ItemsFromSnapshot flattens a crawl snapshot in page order.
func ItemsFromSnapshot(snap crawler.Snapshot) ([]Item, error) {
	state, err := crawler.RestoreState(snap)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	records := state.Records()
	out := make([]Item, 0, len(records))
	for _, r := range records {
		out = append(out, ItemFromRecord(r))
	}
	return out, nil
}
