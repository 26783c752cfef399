package metrics

// normalizeLabel keeps empty label values from producing a blank series.
func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
