// internal/models/key.go

package models

import "strings"

// Key reprezentuje klucz prywatny załadowany do pamięci.
// Zawartość jest nieprzezroczystym blobem; nigdy nie jest
// deszyfrowana ani walidowana na tym poziomie.
type Key struct {
	Name string
	Data []byte
}

// NewKey tworzy klucz z nazwą znormalizowaną do małych liter
func NewKey(name string, data []byte) Key {
	return Key{
		Name: strings.ToLower(name),
		Data: data,
	}
}
