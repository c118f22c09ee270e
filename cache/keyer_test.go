package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyer_Format(t *testing.T) {
	keyer := NewKeyer("")

	key, err := keyer.Derive("example.com:3000", "/api/order_cycles/42/taxons", map[string]string{"distributor": "7"})
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	want := "views/example.com:3000/api/order_cycles/42/taxons?distributor=7"
	if key != want {
		t.Errorf("Derive() = %q, want %q", key, want)
	}
}

func TestKeyer_DeterministicAcrossParamOrder(t *testing.T) {
	keyer := NewKeyer("views")

	params1 := map[string]string{"b": "2", "a": "1", "c": "3"}
	params2 := map[string]string{"c": "3", "a": "1", "b": "2"}

	key1, err := keyer.Derive("shop.test", "api/x", params1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		key2, err := keyer.Derive("shop.test", "api/x", params2)
		if err != nil {
			t.Fatal(err)
		}
		if key1 != key2 {
			t.Fatalf("keys differ for same params:\n  %s\n  %s", key1, key2)
		}
	}
	if !strings.HasSuffix(key1, "?a=1&b=2&c=3") {
		t.Errorf("params not sorted by name: %s", key1)
	}
}

func TestKeyer_DistinguishesInputs(t *testing.T) {
	keyer := NewKeyer("")
	base, _ := keyer.Derive("a.test", "/api/order_cycles/1/taxons", map[string]string{"distributor": "1"})

	variants := []struct {
		name   string
		host   string
		path   string
		params map[string]string
	}{
		{"host", "b.test", "/api/order_cycles/1/taxons", map[string]string{"distributor": "1"}},
		{"path", "a.test", "/api/order_cycles/1/properties", map[string]string{"distributor": "1"}},
		{"param value", "a.test", "/api/order_cycles/1/taxons", map[string]string{"distributor": "2"}},
		{"param name", "a.test", "/api/order_cycles/1/taxons", map[string]string{"shop": "1"}},
		{"no params", "a.test", "/api/order_cycles/1/taxons", nil},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			key, err := keyer.Derive(v.host, v.path, v.params)
			if err != nil {
				t.Fatal(err)
			}
			if key == base {
				t.Errorf("expected different key, both %q", key)
			}
		})
	}
}

func TestKeyer_EmptyParamsHaveNoQuery(t *testing.T) {
	keyer := NewKeyer("")

	for _, params := range []map[string]string{nil, {}} {
		key, err := keyer.Derive("example.com", "/api/x", params)
		if err != nil {
			t.Fatal(err)
		}
		if key != "views/example.com/api/x" {
			t.Errorf("Derive() = %q", key)
		}
	}
}

func TestKeyer_EscapesParams(t *testing.T) {
	keyer := NewKeyer("")

	// Without escaping, {"a": "1&b=2"} and {"a": "1", "b": "2"} would collide.
	k1, _ := keyer.Derive("h", "p", map[string]string{"a": "1&b=2"})
	k2, _ := keyer.Derive("h", "p", map[string]string{"a": "1", "b": "2"})
	if k1 == k2 {
		t.Fatalf("escaped and split params collide: %q", k1)
	}
	if k1 != "views/h/p?a=1%26b%3D2" {
		t.Errorf("Derive() = %q", k1)
	}
}

func TestKeyer_RejectsMissingHostOrPath(t *testing.T) {
	keyer := NewKeyer("")

	tests := []struct {
		name string
		host string
		path string
	}{
		{"empty host", "", "/api/x"},
		{"blank host", "  ", "/api/x"},
		{"empty path", "example.com", ""},
		{"root path", "example.com", "/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := keyer.Derive(tc.host, tc.path, nil)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Derive() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestKeyer_Namespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultNamespace},
		{"/", DefaultNamespace},
		{"fragments", "fragments"},
		{"/shop/", "shop"},
	}
	for _, tc := range tests {
		k := NewKeyer(tc.in)
		if k.Namespace() != tc.want {
			t.Errorf("NewKeyer(%q).Namespace() = %q, want %q", tc.in, k.Namespace(), tc.want)
		}
		key, _ := k.Derive("h", "p", nil)
		if !strings.HasPrefix(key, tc.want+"/") {
			t.Errorf("key %q missing namespace %q", key, tc.want)
		}
	}
}

func TestKeyer_DerivedKeysAreValid(t *testing.T) {
	key, err := NewKeyer("").Derive("example.com", "/api/x", map[string]string{"q": "line\nbreak"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateKey(key); err != nil {
		t.Errorf("derived key %q failed validation: %v", key, err)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{"valid", "views/h/p", nil},
		{"empty", "", ErrInvalidKey},
		{"whitespace", "   ", ErrInvalidKey},
		{"newline", "a\nb", ErrInvalidKey},
		{"carriage return", "a\rb", ErrInvalidKey},
		{"max length", strings.Repeat("k", MaxKeyLength), nil},
		{"too long", strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateKey(tc.key); !errors.Is(err, tc.want) {
				t.Errorf("ValidateKey() = %v, want %v", err, tc.want)
			}
		})
	}
}
