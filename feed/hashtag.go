package feed

import "regexp"

var hashTagPattern = regexp.MustCompile(`#[A-Za-z0-9_]+`)

// ExtractHashTags returns the hashtags in text, leading '#' included,
// case preserved, de-duplicated in first-seen order. Returns nil when the
// text has no hashtags.
func ExtractHashTags(text string) []string {
	matches := hashTagPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var tags []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		tags = append(tags, m)
	}
	return tags
}
