// Package barcode normaliza códigos EAN/UPC/GTIN a su forma canónica GTIN-14.
package barcode

import "strings"

// GTIN14Length longitud de la forma canónica.
const GTIN14Length = 14

// Canonicalize elimina todo carácter no numérico y rellena con '0' a la izquierda
// hasta 14 dígitos. Es idempotente: Canonicalize(Canonicalize(x)) == Canonicalize(x).
// Un código sin dígitos devuelve "" (no es canonicalizable).
// Si tras limpiar quedan más de 14 dígitos se devuelven tal cual.
func Canonicalize(raw string) string {
	var b strings.Builder
	b.Grow(GTIN14Length)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) >= GTIN14Length {
		return digits
	}
	return strings.Repeat("0", GTIN14Length-len(digits)) + digits
}

// CanonicalizeAll canonicaliza y deduplica, preservando el orden de primera aparición.
// Los códigos vacíos se descartan.
func CanonicalizeAll(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		c := Canonicalize(r)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
