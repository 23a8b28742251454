package models

// ResultSet is the ranked list of organic result URLs for a keyword.
type ResultSet []string

// Top returns at most the first n URLs.
func (r ResultSet) Top(n int) ResultSet {
	if n < 0 || n >= len(r) {
		return r
	}
	return r[:n]
}

// URLSet returns the first n URLs as a set.
func (r ResultSet) URLSet(n int) map[string]struct{} {
	top := r.Top(n)
	set := make(map[string]struct{}, len(top))
	for _, u := range top {
		set[u] = struct{}{}
	}
	return set
}
