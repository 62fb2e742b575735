// Package catalog indexes the product image tree and selects images for
// users, either by size folder or randomly without immediate repeats.
package catalog

import (
	"errors"
	"strings"
)

// ErrInvalidSize is returned when a size string is not in the known set.
var ErrInvalidSize = errors.New("invalid size")

// Product sizes, matching the folder names under imagenes/productos.
const (
	SizePequeno = "pequeño"
	SizeMediano = "mediano"
	SizeGrande  = "grande"
)

// Sizes returns all valid sizes in display order.
func Sizes() []string {
	return []string{SizePequeno, SizeMediano, SizeGrande}
}

// sizeKeywords maps the spellings accepted in user input to canonical sizes.
// "pequeno" covers users typing without the ñ.
var sizeKeywords = map[string]string{
	"pequeño": SizePequeno,
	"pequeno": SizePequeno,
	"mediano": SizeMediano,
	"grande":  SizeGrande,
}

// ParseSize resolves a size string to its canonical form.
func ParseSize(raw string) (string, error) {
	if size, ok := sizeKeywords[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return size, nil
	}
	return "", ErrInvalidSize
}

// DetectSize scans free text for the first size keyword it contains.
// The match is a lower-cased substring test, so "un kit pequeno porfa"
// resolves to "pequeño". Returns false when no keyword is present.
func DetectSize(text string) (string, bool) {
	lower := strings.ToLower(text)
	// Check canonical spellings in a fixed order so behavior is deterministic
	// when a message mentions more than one size.
	for _, keyword := range []string{"pequeño", "pequeno", "mediano", "grande"} {
		if strings.Contains(lower, keyword) {
			return sizeKeywords[keyword], true
		}
	}
	return "", false
}
