package json

import (
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/skein"
)

type account struct {
	Name    string           `skein:"name,required"`
	Balance skein.Decimal    `skein:"balance"`
	Opened  time.Time        `skein:"opened"`
	Tags    []string         `skein:"tags"`
	Limits  map[string]int32 `skein:"limits"`
	Raw     []byte           `skein:"raw"`
	Peer    *account         `skein:"peer"`
}

func newRegistry(t *testing.T) *skein.Registry {
	t.Helper()
	reg := skein.NewRegistry()
	if err := skein.RegisterStruct[account](reg, "account"); err != nil {
		t.Fatalf("RegisterStruct() error: %v", err)
	}
	return reg
}

func TestContentType(t *testing.T) {
	c := New()
	if c.ContentType() != "application/json" {
		t.Errorf("ContentType() = %q, want %q", c.ContentType(), "application/json")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	balance, err := skein.ParseDecimal("1024.50")
	if err != nil {
		t.Fatalf("ParseDecimal() error: %v", err)
	}
	opened := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("", 3600))

	alice := &account{
		Name:    "alice <&> \"quoted\"",
		Balance: balance,
		Opened:  opened,
		Tags:    []string{"gold", "", "gold"},
		Limits:  map[string]int32{"daily": -1024, "monthly": 1 << 20},
		Raw:     []byte{0x00, 0xff, 0x10},
	}
	alice.Peer = &account{Name: "bob", Peer: alice}

	data, err := skein.EncodeValue(New(), alice, skein.NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("EncodeValue() error: %v", err)
	}
	got, err := skein.DecodeValue[*account](New(), data, skein.NewSerializationContext(reg))
	if err != nil {
		t.Fatalf("DecodeValue() error: %v", err)
	}

	if got.Name != alice.Name {
		t.Errorf("Name = %q, want %q", got.Name, alice.Name)
	}
	if got.Balance != balance {
		t.Errorf("Balance = %s, want %s", got.Balance, balance)
	}
	if !got.Opened.Equal(opened) {
		t.Errorf("Opened = %v, want %v", got.Opened, opened)
	}
	if _, offset := got.Opened.Zone(); offset != 3600 {
		t.Errorf("Opened offset = %d, want 3600", offset)
	}
	if len(got.Tags) != 3 || got.Tags[0] != "gold" || got.Tags[1] != "" || got.Tags[2] != "gold" {
		t.Errorf("Tags = %q", got.Tags)
	}
	if got.Limits["daily"] != -1024 || got.Limits["monthly"] != 1<<20 {
		t.Errorf("Limits = %v", got.Limits)
	}
	if string(got.Raw) != string(alice.Raw) {
		t.Errorf("Raw = %x, want %x", got.Raw, alice.Raw)
	}
	if got.Peer == nil || got.Peer.Name != "bob" {
		t.Fatalf("Peer = %+v", got.Peer)
	}
	if got.Peer.Peer != got {
		t.Error("cycle through Peer was not restored")
	}
}

func TestDocumentScalars(t *testing.T) {
	ctx := skein.NewSerializationContext(nil)
	tests := []struct {
		name string
		tok  skein.Token
	}{
		{"nothing", skein.Nothing()},
		{"int32", skein.NewToken(int32(-1024))},
		{"uint64", skein.NewToken(uint64(1<<64 - 1))},
		{"float64", skein.NewToken(0.1)},
		{"bool", skein.NewToken(true)},
		{"char", skein.NewToken(skein.Char('é'))},
		{"duration", skein.NewToken(-90 * time.Second)},
		{"string", skein.StringToken("")},
		{"bytes", skein.BytesToken([]byte{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := skein.EncodeDocument(New(), tt.tok, ctx)
			if err != nil {
				t.Fatalf("EncodeDocument() error: %v", err)
			}
			got, err := skein.DecodeDocument(New(), data, ctx)
			if err != nil {
				t.Fatalf("DecodeDocument() error: %v", err)
			}
			if got.String() != tt.tok.String() {
				t.Errorf("round trip = %v, want %v", got, tt.tok)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := skein.DecodeDocument(New(), []byte("{\"kind\":"), skein.NewSerializationContext(nil))
	if !errors.Is(err, skein.ErrUnmarshal) {
		t.Errorf("DecodeDocument() error = %v, want ErrUnmarshal", err)
	}
}
