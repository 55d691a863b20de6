package cmd

import "strconv"

// shortID trims a segment UUID to its first group for display; JSON
// output always carries the full form.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatCount(n int) string {
	return strconv.Itoa(n)
}

func formatDocs(numDocs, numDeleted uint64) string {
	if numDeleted == 0 {
		return formatUint(numDocs)
	}
	return formatUint(numDocs) + " (" + formatUint(numDeleted) + " deleted)"
}

func formatXids(xmin, xmax uint64) string {
	if xmax == 0 {
		return formatUint(xmin) + " / -"
	}
	return formatUint(xmin) + " / " + formatUint(xmax)
}
