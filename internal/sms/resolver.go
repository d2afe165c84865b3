package sms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Resolver maps a normalized phone number to the carrier that serves it.
// Implementations return ErrUnknownProvider when no rule matches.
type Resolver interface {
	DetermineProvider(phone PhoneNumber) (Provider, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(phone PhoneNumber) (Provider, error)

func (f ResolverFunc) DetermineProvider(phone PhoneNumber) (Provider, error) {
	return f(phone)
}

// FixedResolver routes every number to p.
func FixedResolver(p Provider) Resolver {
	return ResolverFunc(func(PhoneNumber) (Provider, error) { return p, nil })
}

func unknownProviderFor(phone PhoneNumber) error {
	return fmt.Errorf("%w for phone number %s", ErrUnknownProvider, phone)
}

// PrefixResolver selects a carrier by the longest numbering-plan prefix that
// matches the digits after the country code.
type PrefixResolver struct {
	prefixes map[string]Provider
	maxLen   int
}

// NewPrefixResolver builds a resolver from a prefix table. Prefixes are the
// digits following the country code ("925", "9585"); each must be non-empty
// and numeric, and map to a known provider.
func NewPrefixResolver(table map[string]Provider) (*PrefixResolver, error) {
	r := &PrefixResolver{prefixes: make(map[string]Provider, len(table))}
	for prefix, p := range table {
		if prefix == "" || stripNonDigits(prefix) != prefix {
			return nil, fmt.Errorf("invalid numbering prefix %q", prefix)
		}
		if !p.Valid() {
			return nil, fmt.Errorf("prefix %q: %w", prefix, ErrUnknownProvider)
		}
		r.prefixes[prefix] = p
		if len(prefix) > r.maxLen {
			r.maxLen = len(prefix)
		}
	}
	return r, nil
}

func (r *PrefixResolver) DetermineProvider(phone PhoneNumber) (Provider, error) {
	subscriber := strings.TrimPrefix(phone.Value(), CountryCode)
	for n := min(r.maxLen, len(subscriber)); n > 0; n-- {
		if p, ok := r.prefixes[subscriber[:n]]; ok {
			return p, nil
		}
	}
	return 0, unknownProviderFor(phone)
}

// DefaultPrefixes returns a starter table of mobile DEF codes. Number
// portability means it is an approximation; deployments override it in config.
func DefaultPrefixes() map[string]Provider {
	table := make(map[string]Provider)
	add := func(p Provider, codes ...string) {
		for _, c := range codes {
			table[c] = p
		}
	}
	add(MTS, "910", "911", "912", "913", "914", "915", "916", "917", "918", "919",
		"980", "981", "982", "983", "984", "985", "986", "987", "988", "989")
	add(Beeline, "903", "905", "906", "909", "960", "961", "962", "963", "964", "965", "966", "967", "968")
	add(MegaFon, "920", "921", "922", "923", "924", "925", "926", "927", "928", "929",
		"930", "931", "932", "933", "934", "936", "937", "938", "939", "997", "999")
	add(Tele2, "900", "901", "902", "904", "908", "950", "951", "952", "953", "958", "977", "991", "992", "993", "994", "995", "996")
	return table
}

// carrierAliases maps lower-cased substrings of libphonenumber carrier names
// to providers.
var carrierAliases = []struct {
	fragment string
	provider Provider
}{
	{"mts", MTS},
	{"beeline", Beeline},
	{"vimpelcom", Beeline},
	{"megafon", MegaFon},
	{"tele2", Tele2},
	{"t2 mobile", Tele2},
}

// CarrierResolver resolves carriers from the libphonenumber carrier
// database. Only the original range holder is known, so ported numbers
// resolve to their donor carrier.
type CarrierResolver struct {
	lang string
}

// NewCarrierResolver creates a CarrierResolver that reads carrier names in
// English.
func NewCarrierResolver() *CarrierResolver {
	return &CarrierResolver{lang: "en"}
}

func (r *CarrierResolver) DetermineProvider(phone PhoneNumber) (Provider, error) {
	num, err := phonenumbers.Parse(phone.E164(), "")
	if err != nil {
		return 0, unknownProviderFor(phone)
	}
	name, err := phonenumbers.GetCarrierForNumber(num, r.lang)
	if err != nil || name == "" {
		return 0, unknownProviderFor(phone)
	}
	name = strings.ToLower(name)
	for _, alias := range carrierAliases {
		if strings.Contains(name, alias.fragment) {
			return alias.provider, nil
		}
	}
	return 0, fmt.Errorf("%w: carrier %q for phone number %s", ErrUnknownProvider, name, phone)
}

// ChainResolver asks each resolver in turn and returns the first match.
// Errors other than ErrUnknownProvider stop the chain.
type ChainResolver []Resolver

func (c ChainResolver) DetermineProvider(phone PhoneNumber) (Provider, error) {
	for _, r := range c {
		p, err := r.DetermineProvider(phone)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnknownProvider) {
			return 0, err
		}
	}
	return 0, unknownProviderFor(phone)
}
