package towns

import "sort"

// Usernames is a set of usernames
type Usernames map[string]struct{}

func NewUsernames(usernames ...string) Usernames {
	u := Usernames{}
	for _, username := range usernames {
		u.Add(username)
	}

	return u
}

// Add inserts username and reports whether the set changed
func (u Usernames) Add(username string) bool {
	if _, ok := u[username]; ok {
		return false
	}

	u[username] = struct{}{}

	return true
}

// Remove deletes username and reports whether the set changed
func (u Usernames) Remove(username string) bool {
	if _, ok := u[username]; !ok {
		return false
	}

	delete(u, username)

	return true
}

func (u Usernames) Has(username string) bool {
	_, ok := u[username]

	return ok
}

// Sorted returns a copy of the set in lexical order
func (u Usernames) Sorted() []string {
	out := make([]string, 0, len(u))
	for username := range u {
		out = append(out, username)
	}
	sort.Strings(out)

	return out
}
