package sms

import (
	"fmt"
	"strings"
)

// Provider identifies a telecom carrier acting as an SMS gateway.
type Provider int

const (
	MTS Provider = iota + 1
	Beeline
	MegaFon
	Tele2
)

var providerNames = map[Provider]string{
	MTS:     "mts",
	Beeline: "beeline",
	MegaFon: "megafon",
	Tele2:   "tele2",
}

// Providers returns every known carrier in declaration order.
func Providers() []Provider {
	return []Provider{MTS, Beeline, MegaFon, Tele2}
}

func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// Valid reports whether p is one of the known carriers.
func (p Provider) Valid() bool {
	_, ok := providerNames[p]
	return ok
}

// ParseProvider maps a case-insensitive carrier name to a Provider.
func ParseProvider(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for p, pn := range providerNames {
		if pn == n {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// SMS is a validated message addressed to a resolved carrier. It is built
// once per send attempt and never shared across attempts.
type SMS struct {
	Phone    PhoneNumber
	Message  Message
	Provider Provider
}

// NewSMS validates phone and text and resolves the carrier. Validation and
// resolver errors are returned unchanged.
func NewSMS(phone, text string, resolver Resolver) (SMS, error) {
	number, err := NewPhoneNumber(phone)
	if err != nil {
		return SMS{}, err
	}
	provider, err := resolver.DetermineProvider(number)
	if err != nil {
		return SMS{}, err
	}
	msg, err := NewMessage(text)
	if err != nil {
		return SMS{}, err
	}
	return SMS{Phone: number, Message: msg, Provider: provider}, nil
}

// MessageCost is the result of a successful send: the amount charged by the
// gateway and the balance left afterwards.
type MessageCost struct {
	Cost             float64 `json:"cost"`
	RemainingBalance float64 `json:"remaining_balance"`
}
