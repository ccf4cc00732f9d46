package rule

import "strings"

var keywords = map[string]Kind{
	"DOMAIN":         Domain,
	"DOMAIN-SUFFIX":  DomainSuffix,
	"DOMAIN-KEYWORD": DomainKeyword,
	"IP-CIDR":        IPCIDR,
	"IP-CIDR6":       IPCIDR6,
}

// Classify parses one rule line.
// ok is false for blank lines and comments, which produce no token.
func Classify(line string) (r Rule, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false
	}

	if !strings.Contains(line, ",") {
		return Rule{Kind: BareDomain, Value: line}, true
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Rule{Kind: Unrecognized}, true
	}

	kind, known := keywords[strings.TrimSpace(fields[0])]
	value := strings.TrimSpace(fields[1])
	if !known || value == "" {
		return Rule{Kind: Unrecognized, Value: value}, true
	}

	if kind == IPCIDR || kind == IPCIDR6 {
		value = stripQualifier(value)
	}

	return Rule{Kind: kind, Value: value}, true
}

// stripQualifier keeps the text before the first whitespace-delimited
// qualifier, e.g. "1.2.3.0/24 no-resolve" -> "1.2.3.0/24".
// Comma-delimited qualifiers never reach here since only field two is kept.
func stripQualifier(value string) string {
	if i := strings.IndexFunc(value, isSpace); i >= 0 {
		return value[:i]
	}
	return value
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
