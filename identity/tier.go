package identity

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Tier classifies both identities and resources. Tiers form a total order by
// rank: TierFree < TierPremium < TierElite. The zero value is not a valid tier.
type Tier uint8

const (
	TierUnknown Tier = iota
	TierFree
	TierPremium
	TierElite
)

var tierNames = [...]string{
	TierUnknown: "UNKNOWN",
	TierFree:    "FREE",
	TierPremium: "PREMIUM",
	TierElite:   "ELITE",
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FREE":
		return TierFree, nil
	case "PREMIUM":
		return TierPremium, nil
	case "ELITE":
		return TierElite, nil
	}
	return TierUnknown, fmt.Errorf("identity: unknown tier %q", s)
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= TierFree && t <= TierElite
}

// AtLeast reports whether t ranks at or above min. Invalid tiers never do.
func (t Tier) AtLeast(min Tier) bool {
	return t.Valid() && min.Valid() && t >= min
}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("Tier(%d)", uint8(t))
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("identity: cannot marshal invalid tier %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scan implements sql.Scanner for TEXT tier columns.
func (t *Tier) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case nil:
		return fmt.Errorf("identity: NULL tier")
	}
	return fmt.Errorf("identity: cannot scan %T into Tier", src)
}

// Value implements driver.Valuer.
func (t Tier) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("identity: invalid tier %d", uint8(t))
	}
	return t.String(), nil
}
