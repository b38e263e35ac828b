package login

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Provider attribute names read by ProfileFromAttributes.
const (
	AttrID        = "id"
	AttrEmail     = "email"
	AttrLogin     = "login"
	AttrAvatarURL = "avatar_url"
)

// Profile is the normalized subset of a provider profile needed to complete
// a login.
type Profile struct {
	ExternalID int64
	Mail       string
	Login      string
	AvatarURL  string
}

// ProfileFromAttributes extracts a Profile from a provider attribute map.
// The id may be a JSON number, any Go integer type, or a decimal string.
// Every attribute is required; the returned error wraps
// ErrProviderProfileIncomplete and names each missing one.
func ProfileFromAttributes(attrs map[string]any) (Profile, error) {
	var p Profile
	var missing []string

	id, ok := numericID(attrs[AttrID])
	if ok {
		p.ExternalID = id
	} else {
		missing = append(missing, AttrID)
	}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{AttrEmail, &p.Mail},
		{AttrLogin, &p.Login},
		{AttrAvatarURL, &p.AvatarURL},
	} {
		s, _ := attrs[f.name].(string)
		s = strings.TrimSpace(s)
		if s == "" {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = s
	}

	if len(missing) > 0 {
		return Profile{}, fmt.Errorf("%w: missing %s", ErrProviderProfileIncomplete, strings.Join(missing, ", "))
	}
	return p, nil
}

func numericID(v any) (int64, bool) {
	var id int64
	switch n := v.(type) {
	case int:
		id = int64(n)
	case int32:
		id = int64(n)
	case int64:
		id = n
	case uint32:
		id = int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		id = int64(n)
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 {
			return 0, false
		}
		id = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		id = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		id = i
	default:
		return 0, false
	}
	return id, id > 0
}
