// Package quantity validates Kubernetes resource-quantity strings such as
// "250m", "2Gi" or "1e3" against the quantity grammar:
//
//	quantity       ::= sign? mantissa format?
//	mantissa       ::= digits | digits "." digits? | "." digits
//	format         ::= binarySI | decimalSI | decimalExponent
//	binarySI       ::= Ki | Mi | Gi | Ti | Pi | Ei
//	decimalSI      ::= n | u | m | k | M | G | T | P | E
//	decimalExponent ::= ("e" | "E") sign? digits
//
// A suffix never combines with exponent notation, the mantissa must be
// non-empty, and leading or trailing whitespace is invalid.
package quantity

import "fmt"

// GrammarError describes why a literal is not a valid quantity.
type GrammarError struct {
	Literal string
	Reason  string
}

func (e *GrammarError) Error() string {
	return fmt.Sprintf("invalid quantity %q: %s", e.Literal, e.Reason)
}

var binarySuffixes = map[string]bool{
	"Ki": true, "Mi": true, "Gi": true, "Ti": true, "Pi": true, "Ei": true,
}

// Decimal SI suffixes. "k" is lower-case by exception; the rest of the
// positive multipliers are upper-case.
var decimalSuffixes = map[string]bool{
	"n": true, "u": true, "m": true, "k": true,
	"M": true, "G": true, "T": true, "P": true, "E": true,
}

// Check validates s against the quantity grammar. A nil return means s is a
// well-formed quantity.
func Check(s string) error {
	if s == "" {
		return &GrammarError{Literal: s, Reason: "empty string"}
	}
	if s[0] == ' ' || s[0] == '\t' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t' {
		return &GrammarError{Literal: s, Reason: "leading or trailing whitespace"}
	}

	rest := s

	// Optional sign.
	if rest[0] == '+' || rest[0] == '-' {
		rest = rest[1:]
	}

	// Mantissa: digits with at most one decimal point, at least one digit.
	digits := 0
	dots := 0
	i := 0
	for ; i < len(rest); i++ {
		c := rest[i]
		if c >= '0' && c <= '9' {
			digits++
			continue
		}
		if c == '.' {
			dots++
			if dots > 1 {
				return &GrammarError{Literal: s, Reason: "multiple decimal points"}
			}
			continue
		}
		break
	}
	if digits == 0 {
		return &GrammarError{Literal: s, Reason: "empty mantissa"}
	}
	rest = rest[i:]

	if rest == "" {
		return nil
	}

	// Exponent form: e/E followed by an optionally signed integer. The "E"
	// decimal suffix is only taken as exa when nothing follows it, so the
	// exponent check runs first.
	if rest[0] == 'e' || rest[0] == 'E' {
		exp := rest[1:]
		if exp != "" && (exp[0] == '+' || exp[0] == '-') {
			exp = exp[1:]
		}
		if len(exp) > 0 {
			ok := true
			for j := 0; j < len(exp); j++ {
				if exp[j] < '0' || exp[j] > '9' {
					ok = false
					break
				}
			}
			if ok {
				return nil
			}
		}
	}

	if binarySuffixes[rest] || decimalSuffixes[rest] {
		return nil
	}

	return &GrammarError{Literal: s, Reason: fmt.Sprintf("unrecognized suffix %q", rest)}
}
