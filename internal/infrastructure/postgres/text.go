package postgres

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// normalizeText convierte a UTF-8 NFC los textos que llegan de la base de ventas.
// Parte del histórico se cargó en ISO-8859-1; esas cadenas no son UTF-8 válido
// y se decodifican como Latin-1 antes de normalizar.
func normalizeText(s string) string {
	if s == "" {
		return s
	}
	if !utf8.ValidString(s) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().String(s); err == nil {
			s = decoded
		}
	}
	return strings.TrimSpace(norm.NFC.String(s))
}
