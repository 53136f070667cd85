package domain

import "strings"

// NormalizeTagKey lowers and trims a tag key for comparison.
func NormalizeTagKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NormalizeTagValue lowers and trims a tag value for comparison.
func NormalizeTagValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// SplitTagValueList splits a delimited tag value into normalized entries.
// Commas, slashes and colons are all accepted as separators because
// organization tag policies disallow commas in tag values.
func SplitTagValueList(value string) []string {
	value = strings.NewReplacer("/", ",", ":", ",").Replace(value)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = NormalizeTagValue(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
