package model

import (
	"encoding/json"
	"testing"
)

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    Attribute
		wantErr bool
	}{
		{name: "key and value", tag: "role=admin", want: Attribute{Key: "role", Value: "admin"}},
		{name: "splits on first equals", tag: "expr=a=b", want: Attribute{Key: "expr", Value: "a=b"}},
		{name: "no equals", tag: "beta", want: Attribute{Key: "beta", Value: ""}},
		{name: "empty value", tag: "team=", want: Attribute{Key: "team", Value: ""}},
		{name: "trims key", tag: " team =devops", want: Attribute{Key: "team", Value: "devops"}},
		{name: "empty key", tag: "=admin", wantErr: true},
		{name: "blank", tag: "  ", wantErr: true},
		{name: "comma", tag: "team=a,b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAttribute(tt.tag)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAttribute(%q) expected error, got %+v", tt.tag, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAttribute(%q) error = %v", tt.tag, err)
			}
			if got != tt.want {
				t.Errorf("ParseAttribute(%q) = %+v, want %+v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseAttributeList(t *testing.T) {
	set, err := ParseAttributeList("role=user, team=frontend,,team=backend")
	if err != nil {
		t.Fatalf("ParseAttributeList() error = %v", err)
	}

	want := MustParseAttributeSet("role=user", "team=frontend", "team=backend")
	if !set.Equal(want) {
		t.Errorf("set = %v, want %v", set, want)
	}

	empty, err := ParseAttributeList("")
	if err != nil {
		t.Fatalf("ParseAttributeList(\"\") error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len(empty) = %d, want 0", len(empty))
	}
}

func TestAttributeSet_PreservesOrderAndDuplicates(t *testing.T) {
	set := MustParseAttributeSet("team=devops", "role=user", "team=devops")

	got := set.Strings()
	want := []string{"team=devops", "role=user", "team=devops"}
	if len(got) != len(want) {
		t.Fatalf("Strings() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Strings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if set.String() != "team=devops,role=user,team=devops" {
		t.Errorf("String() = %q", set.String())
	}
}

func TestAttributeSet_HasAndValues(t *testing.T) {
	set := MustParseAttributeSet("role=user", "clearance=gold", "team=frontend", "team=backend")

	if !set.Has("clearance", "gold") {
		t.Error("Has(clearance, gold) = false, want true")
	}
	if set.Has("role", "admin") {
		t.Error("Has(role, admin) = true, want false")
	}

	teams := set.Values("team")
	if len(teams) != 2 || teams[0] != "frontend" || teams[1] != "backend" {
		t.Errorf("Values(team) = %v, want [frontend backend]", teams)
	}
	if got := set.Values("missing"); got != nil {
		t.Errorf("Values(missing) = %v, want nil", got)
	}
}

func TestAttributeSet_Equal(t *testing.T) {
	a := MustParseAttributeSet("role=user", "team=devops")

	if !a.Equal(MustParseAttributeSet("role=user", "team=devops")) {
		t.Error("identical sets should be equal")
	}
	if a.Equal(MustParseAttributeSet("team=devops", "role=user")) {
		t.Error("order should matter")
	}
	if !(AttributeSet{}).Equal(nil) {
		t.Error("empty and nil sets should be equal")
	}
}

func TestAttributeSet_JSON(t *testing.T) {
	data, err := json.Marshal(AttributeSet{})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	// ゲストでもnullではなく空配列
	if string(data) != "[]" {
		t.Errorf("Marshal(empty) = %s, want []", data)
	}

	var set AttributeSet
	if err := json.Unmarshal([]byte(`["role=admin","clearance=gold"]`), &set); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !set.Equal(MustParseAttributeSet("role=admin", "clearance=gold")) {
		t.Errorf("set = %v", set)
	}

	if err := json.Unmarshal([]byte(`["=bad"]`), &set); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestMustParseAttributeSet_PanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustParseAttributeSet("=admin")
}
