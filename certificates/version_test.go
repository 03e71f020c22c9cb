package certificates_test

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github/sabouaram/httpengine/certificates"
)

func TestVersionParse(t *testing.T) {
	cases := map[string]certificates.Version{
		"tls10": certificates.Version10,
		"tls12": certificates.Version12,
		"1.3":   certificates.Version13,
		"bogus": certificates.VersionUnknown,
	}
	for in, want := range cases {
		if got := certificates.Parse(in); got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVersionYAMLRoundTrip(t *testing.T) {
	type holder struct {
		V certificates.Version `yaml:"v"`
	}

	b, err := yaml.Marshal(holder{V: certificates.Version13})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var h holder
	if err := yaml.Unmarshal(b, &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.V != certificates.Version13 {
		t.Fatalf("expected tls13, got %v", h.V)
	}
}
