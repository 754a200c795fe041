package ojson

import "testing"

func TestParse_PreservesKeyOrder(t *testing.T) {
	n, err := Parse([]byte(`{"b":1,"a":2,"c":3}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "a", "c"}
	if len(n.Keys) != len(want) {
		t.Fatalf("got %v keys, want %v", n.Keys, want)
	}
	for i, k := range want {
		if n.Keys[i] != k {
			t.Fatalf("key[%d] = %q, want %q", i, n.Keys[i], k)
		}
	}
}

func TestParse_Array(t *testing.T) {
	n, err := Parse([]byte(`[1,"two",true,null]`))
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsArray() || len(n.Items) != 4 {
		t.Fatalf("expected array of 4 items, got %+v", n)
	}
}

func TestAsString(t *testing.T) {
	n, _ := Parse([]byte(`{"k":"v"}`))
	s, ok := n.GetString("k")
	if !ok || s != "v" {
		t.Fatalf("GetString = %q, %v", s, ok)
	}
}
