package content

import (
	"encoding/json"
	"testing"
)

func TestFromJSON_PreservesKeyOrder(t *testing.T) {
	v, err := FromJSON([]byte(`{"zebra":1,"apple":2,"mango":3}`))
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	keys := v.Keys()
	want := []string{"zebra", "apple", "mango"}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestJSON_RoundTripIsByteStable(t *testing.T) {
	src := `{"name":"X","count":10,"rate":1.50,"nested":{"b":true,"a":null},"list":["x",2,false]}`
	v, err := FromJSON([]byte(src))
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	first := v.JSON()
	second := v.JSON()
	if first != second {
		t.Fatalf("JSON() not stable:\n%s\n%s", first, second)
	}

	// Re-decoding the encoded form must produce the same bytes again:
	// key order and numeric literals survive the round trip.
	v2, err := FromJSON([]byte(first))
	if err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if v2.JSON() != first {
		t.Errorf("round trip changed encoding:\n%s\n%s", first, v2.JSON())
	}
}

func TestJSON_PreservesNumericLiterals(t *testing.T) {
	v := MustFromJSON(`{"a":1.0,"b":100,"c":0.25}`)
	got := v.JSON()
	want := `{"a":1.0,"b":100,"c":0.25}`
	if got != want {
		t.Errorf("JSON() = %s, want %s", got, want)
	}
}

func TestScalars(t *testing.T) {
	if !Null().IsNull() {
		t.Error("Null() should be null")
	}
	if Bool(true).Literal() != "true" {
		t.Errorf("Bool literal = %q", Bool(true).Literal())
	}
	if Int(42).Literal() != "42" {
		t.Errorf("Int literal = %q", Int(42).Literal())
	}
	if String("hi").Str() != "hi" {
		t.Errorf("Str() = %q", String("hi").Str())
	}

	v := MustFromJSON(`3.14`)
	if v.Kind() != KindNumber || v.Num() != 3.14 {
		t.Errorf("number decode: kind=%v num=%v", v.Kind(), v.Num())
	}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Null(), true},
		{String(""), true},
		{String("x"), false},
		{List(), true},
		{List(Int(1)), false},
		{NewMap().Value(), true},
		{NewMap().Set("k", Null()).Value(), false},
		{Bool(false), false},
		{Int(0), false},
	}
	for i, c := range cases {
		if got := c.v.IsEmpty(); got != c.want {
			t.Errorf("case %d: IsEmpty() = %v, want %v", i, got, c.want)
		}
	}
}

func TestMapAccessors(t *testing.T) {
	v := MustFromJSON(`{"a":{"b":"deep"},"c":[1,2]}`)

	if got := v.Get("a").Get("b").Str(); got != "deep" {
		t.Errorf("nested Get = %q, want deep", got)
	}
	if v.Get("missing").Kind() != KindNull {
		t.Error("missing key should be null")
	}
	if v.Get("c").Len() != 2 {
		t.Errorf("list Len = %d, want 2", v.Get("c").Len())
	}
}

func TestFromJSON_RejectsTrailingContent(t *testing.T) {
	if _, err := FromJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Error("expected error for trailing content")
	}
}

func TestMarshalerIntegration(t *testing.T) {
	// Value must work as a field in structs serialized with encoding/json.
	type record struct {
		Content Value `json:"content"`
	}

	in := record{Content: MustFromJSON(`{"z":1,"a":2}`)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"content":{"z":1,"a":2}}` {
		t.Errorf("marshal = %s", data)
	}

	var out record
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Content.JSON() != in.Content.JSON() {
		t.Errorf("round trip mismatch: %s vs %s", out.Content.JSON(), in.Content.JSON())
	}
}
