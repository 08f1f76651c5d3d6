package audit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/use-agent/shelfscan/models"
)

func TestReadInputs(t *testing.T) {
	src := "\ufeffURL,Domain,Category,intent\n" +
		"https://a.com/p/1,a.com,pumps,buy heat pump\n" +
		",a.com,,\n" +
		"https://b.com/p/2\n"
	got, err := ReadInputs(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []models.AuditInput{
		{URL: "https://a.com/p/1", Domain: "a.com", Category: "pumps", Intent: "buy heat pump"},
		{URL: "https://b.com/p/2"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d inputs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := ReadInputs(strings.NewReader("domain\na.com\n")); err == nil {
		t.Error("missing url column accepted")
	}
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	recs := []*models.AuditRecord{
		{URL: "https://a.com/p/1", Domain: "a.com", ProductScore: 85, IdentifierTier: models.IdentifierGtin},
		nil,
	}
	if err := WriteRecords(&buf, recs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "https://a.com/p/1,a.com,85,0,gtin,none,") {
		t.Errorf("row = %q", lines[1])
	}
}
