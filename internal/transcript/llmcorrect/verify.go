package llmcorrect

import "strings"

// anchor pairs a token of the original with the identical token of the
// corrected text.
type anchor struct{ orig, corr int }

// lcs returns the anchors of the longest common token subsequence of a and b.
func lcs(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	out := make([]anchor, dp[m][n])
	for i, j, k := m, n, len(out)-1; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			out[k] = anchor{i - 1, j - 1}
			i, j, k = i-1, j-1, k-1
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// keepDeclared rebuilds the corrected text from original, applying only the
// changed spans that match a declared correction. It returns the text and the
// corrections that were actually applied.
func keepDeclared(original, corrected string, declared []Correction) (string, []Correction) {
	if original == corrected {
		return original, nil
	}
	orig, corr := strings.Fields(original), strings.Fields(corrected)

	type key struct{ from, to string }
	byKey := make(map[key]Correction, len(declared))
	for _, c := range declared {
		byKey[key{normalize(c.Original), normalize(c.Corrected)}] = c
	}

	var (
		out     []string
		applied []Correction
	)
	span := func(o, c []string) {
		if len(o) == 0 && len(c) == 0 {
			return
		}
		if d, ok := byKey[key{normalize(strings.Join(o, " ")), normalize(strings.Join(c, " "))}]; ok {
			out = append(out, c...)
			applied = append(applied, d)
			return
		}
		out = append(out, o...)
	}

	oi, ci := 0, 0
	for _, a := range lcs(orig, corr) {
		span(orig[oi:a.orig], corr[ci:a.corr])
		out = append(out, orig[a.orig])
		oi, ci = a.orig+1, a.corr+1
	}
	span(orig[oi:], corr[ci:])
	return strings.Join(out, " "), applied
}
