package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Informatique", "informatique"},
		{"INFORMATIQUE", "informatique"},
		{"Filière Informatiqué", "filiere informatique"},
		{"  Année   Préparatoire ", "annee preparatoire"},
		{"Saint-Étienne", "saint etienne"},
		{"L'École", "lecole"},
		{"L’École", "lecole"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.in), "Key(%q)", tt.in)
	}
}

func TestStripDiacritics(t *testing.T) {
	assert.Equal(t, "eeaicu", StripDiacritics("éèàïçû"))
	assert.Equal(t, "Prepa", StripDiacritics("Prépa"))
	assert.Equal(t, "plain", StripDiacritics("plain"))
}
