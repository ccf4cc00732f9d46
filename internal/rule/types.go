// Package rule classifies single rule lines and normalizes IP literals.
package rule

// Kind represents the type of a classified rule line.
type Kind int

const (
	Unrecognized Kind = iota
	Domain
	DomainSuffix
	DomainKeyword
	IPCIDR
	IPCIDR6
	BareDomain
)

// String returns the rule keyword for the kind.
func (k Kind) String() string {
	switch k {
	case Domain:
		return "DOMAIN"
	case DomainSuffix:
		return "DOMAIN-SUFFIX"
	case DomainKeyword:
		return "DOMAIN-KEYWORD"
	case IPCIDR:
		return "IP-CIDR"
	case IPCIDR6:
		return "IP-CIDR6"
	case BareDomain:
		return "BARE"
	default:
		return "UNRECOGNIZED"
	}
}

// Rule is a classified rule line.
type Rule struct {
	Kind  Kind
	Value string
}

// IsDomain reports whether the rule contributes to the domain list.
func (r Rule) IsDomain() bool {
	return r.Kind == Domain || r.Kind == DomainSuffix || r.Kind == BareDomain
}

// IsCIDR reports whether the rule carries an IP literal.
func (r Rule) IsCIDR() bool {
	return r.Kind == IPCIDR || r.Kind == IPCIDR6
}

// DomainEntry renders the rule as a domain-list line.
// Suffix rules are prefixed with "+.".
func (r Rule) DomainEntry() string {
	if r.Kind == DomainSuffix {
		return SuffixPrefix + r.Value
	}
	return r.Value
}

// SuffixPrefix marks a suffix match in the domain-list format.
const SuffixPrefix = "+."
