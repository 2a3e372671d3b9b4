package domain

import (
	"fmt"
	"strings"
)

type ProviderEnum int

const (
	Deribit ProviderEnum = iota
	Bitstamp
	Kucoin
	Luno
)

var providerNames = []string{"Deribit", "Bitstamp", "Kucoin", "Luno"}

func (e ProviderEnum) String() string {
	if e < 0 || int(e) >= len(providerNames) {
		return fmt.Sprintf("Provider(%d)", int(e))
	}
	return providerNames[e]
}

func ParseProvider(s string) (ProviderEnum, error) {
	for i, name := range providerNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return ProviderEnum(i), nil
		}
	}
	return 0, fmt.Errorf("invalid value for provider: %q", s)
}

func (e ProviderEnum) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(e.String())), nil
}

func (e *ProviderEnum) UnmarshalText(text []byte) error {
	p, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*e = p
	return nil
}
