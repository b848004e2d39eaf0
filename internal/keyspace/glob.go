package keyspace

// MatchGlob reports whether name matches a Redis-style KEYS glob pattern:
// '*' matches any run of characters, '?' matches exactly one, and '[...]'
// matches a character class (with '^' negation and 'a-z' ranges), with '\\'
// escaping the next character literally. This is a small, domain-specific
// grammar that differs from path.Match (no '/' special-casing, different
// escape handling) so it is hand-written rather than borrowed from the
// standard library's path matcher.
func MatchGlob(pattern, name string) bool {
	return matchGlob([]byte(pattern), []byte(name))
}

func matchGlob(pattern, name []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			//1.- Collapse consecutive '*' and try every possible split point.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchGlob(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		case '[':
			if len(name) == 0 {
				return false
			}
			end := findClassEnd(pattern)
			if end < 0 {
				// Unterminated class: treat '[' as a literal.
				if name[0] != '[' {
					return false
				}
				pattern = pattern[1:]
				name = name[1:]
				continue
			}
			ok := matchClass(pattern[1:end], name[0])
			if !ok {
				return false
			}
			pattern = pattern[end+1:]
			name = name[1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

func findClassEnd(pattern []byte) int {
	for i := 1; i < len(pattern); i++ {
		if pattern[i] == ']' && i > 1 {
			return i
		}
	}
	return -1
}

func matchClass(class []byte, c byte) bool {
	negate := false
	if len(class) > 0 && class[0] == '^' {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			matched = true
		}
	}
	if negate {
		return !matched
	}
	return matched
}
