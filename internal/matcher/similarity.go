package matcher

// similarity returns the Ratcliff-Obershelp ratio of two strings in [0, 1]:
// twice the number of characters in common (counted through recursive
// longest-match splitting) over the total length. Two empty strings rate 1.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingChars(ra, rb)) / float64(total)
}

// matchingChars counts characters in common: the longest matching block,
// plus matches recursively found to its left and right.
func matchingChars(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return matchingChars(a[:ai], b[:bi]) + size + matchingChars(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest common substring, preferring the earliest
// position in a, then in b, on ties.
func longestMatch(a, b []rune) (bestA, bestB, bestSize int) {
	// positions of each rune in b
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	// j2len[j] is the length of the match ending at a[i-1], b[j-1].
	j2len := make(map[int]int)
	for i, r := range a {
		newJ2len := make(map[int]int)
		for _, j := range b2j[r] {
			k := j2len[j-1] + 1
			newJ2len[j] = k
			if k > bestSize {
				bestA, bestB, bestSize = i-k+1, j-k+1, k
			}
		}
		j2len = newJ2len
	}
	return bestA, bestB, bestSize
}
