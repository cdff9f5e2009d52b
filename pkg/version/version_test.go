package version

import (
	"errors"
	"slices"
	"testing"
)

func TestAssignSerialsPyPI(t *testing.T) {
	got := AssignSerials(MustFor(PyPI), []string{"1.0.0", "1.0.0.dev1", "1.1.0", "not-a-version"})
	want := []Serialized{
		{Name: "not-a-version", Serial: -1},
		{Name: "1.0.0.dev1", Serial: 0},
		{Name: "1.0.0", Serial: 1},
		{Name: "1.1.0", Serial: 2},
	}
	if !slices.Equal(got, want) {
		t.Errorf("AssignSerials() = %v, want %v", got, want)
	}
}

func TestAssignSerialsOrderIsomorphic(t *testing.T) {
	names := []string{"2.0.0", "1.10.0", "1.2.0", "1.2.0-rc.1", "0.9.0", "1.2.0"}
	alg := MustFor(NPM)
	got := AssignSerials(alg, names)

	if len(got) != 5 {
		t.Fatalf("duplicates should collapse: got %d entries", len(got))
	}
	for i := range got {
		if got[i].Serial != i {
			t.Errorf("serial[%d] = %d, want dense numbering", i, got[i].Serial)
		}
		for j := range got {
			c, err := Compare(alg, got[i].Name, got[j].Name)
			if err != nil {
				t.Fatal(err)
			}
			if c != cmpInt(got[i].Serial, got[j].Serial) {
				t.Errorf("compare(%s, %s) = %d disagrees with serials", got[i].Name, got[j].Name, c)
			}
		}
	}
}

func TestMatching(t *testing.T) {
	alg := MustFor(PyPI)
	vs := AssignSerials(alg, []string{"0.99.0", "0.100.0", "0.101.0", "garbage"})

	if got := Matching(alg, vs, ">=0.100.0"); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Matching(>=0.100.0) = %v, want [1 2]", got)
	}
	if got := Matching(alg, vs, ""); !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("Matching(\"\") = %v, want all parseable serials", got)
	}
	if got := Matching(alg, vs, ">=5"); len(got) != 0 {
		t.Errorf("Matching(>=5) = %v, want none", got)
	}
	if got := Matching(alg, vs, ">>>"); got != nil {
		t.Errorf("unparseable constraint should match nothing, got %v", got)
	}
}

func TestParseError(t *testing.T) {
	for _, eco := range Ecosystems {
		_, err := MustFor(eco).Parse("")
		if !errors.Is(err, ErrParse) {
			t.Errorf("%s: Parse(\"\") error = %v, want ErrParse", eco, err)
		}
	}
}

func TestParseEcosystem(t *testing.T) {
	for _, s := range []string{"pypi", "PyPI", "npm", "maven", "NUGET", "cargo", "rubygems"} {
		if _, err := ParseEcosystem(s); err != nil {
			t.Errorf("ParseEcosystem(%q) error = %v", s, err)
		}
	}
	if _, err := ParseEcosystem("golang"); err == nil {
		t.Error("ParseEcosystem(golang) should fail")
	}
	if _, err := For(Ecosystem("Hex")); err == nil {
		t.Error("For(Hex) should fail")
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		eco        Ecosystem
		version    string
		constraint string
		want       bool
	}{
		{PyPI, "0.101.0", ">=0.100.0", true},
		{PyPI, "0.99.0", ">=0.100.0", false},
		{PyPI, "1.4.9", "~=1.4.5", true},
		{PyPI, "1.5.0", "~=1.4.5", false},
		{PyPI, "1.2.7", "==1.2.*", true},
		{PyPI, "1.3.0", "==1.2.*", false},
		{PyPI, "1.2.3", "!=1.2.*", false},
		{PyPI, "1.3", "!=1.2.*", true},
		{PyPI, "2.0", "<1||>=2", true},
		{PyPI, "1.5", "<1||>=2", false},
		{PyPI, "1.0", "===1.0", true},

		{NPM, "1.2.3", "^1.0.0", true},
		{NPM, "2.0.0", "^1.0.0", false},
		{NPM, "1.5.0", ">=1.0.0 <2.0.0", true},
		{NPM, "1.4.2", "~1.4.0", true},
		{NPM, "3.0.0", "latest", true},
		{NPM, "3.0.0", "*", true},
		{NPM, "1.0.0", "1.0.0", true},
		{NPM, "1.0.1", "1.0.0", false},

		{Cargo, "1.3.0", "1.2", true},
		{Cargo, "2.0.0", "1.2", false},
		{Cargo, "1.2.5", "=1.2.5", true},
		{Cargo, "1.4.0", ">=1.2, <1.5", true},

		{Maven, "1.5", "[1.0,2.0)", true},
		{Maven, "2.0", "[1.0,2.0)", false},
		{Maven, "1.0", "(1.0,2.0)", false},
		{Maven, "1.2", "1.2", true},
		{Maven, "1.3", "1.2", false},
		{Maven, "3.1", "[1.0,2.0),[3.0,)", true},
		{Maven, "2.5", "[1.0,2.0),[3.0,)", false},
		{Maven, "0.1", "(,1.0]", true},

		{NuGet, "1.5.0", "1.0", true},
		{NuGet, "0.9.0", "1.0", false},
		{NuGet, "1.0.0", "[1.0]", true},
		{NuGet, "2.0", "(,2.0]", true},
		{NuGet, "1.9.3", "1.*", true},
		{NuGet, "2.0.0", "1.*", false},
		{NuGet, "1.0.0-beta", "[1.0.0,)", false},

		{RubyGems, "1.2.5", "~> 1.2", true},
		{RubyGems, "2.0", "~> 1.2", false},
		{RubyGems, "3.1.0", ">= 0", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.eco)+" "+tt.version+" "+tt.constraint, func(t *testing.T) {
			if got := InRange(MustFor(tt.eco), tt.version, tt.constraint); got != tt.want {
				t.Errorf("InRange(%q, %q) = %v, want %v", tt.version, tt.constraint, got, tt.want)
			}
		})
	}
}

func TestNuGetOrdering(t *testing.T) {
	alg := MustFor(NuGet)
	ordered := []string{"1.0.0-alpha", "1.0.0-alpha.1", "1.0.0-beta", "1.0.0", "1.0.0.1", "1.1", "2.0.0"}
	for i := 0; i+1 < len(ordered); i++ {
		c, err := Compare(alg, ordered[i], ordered[i+1])
		if err != nil {
			t.Fatal(err)
		}
		if c >= 0 {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
	}
	if c, _ := Compare(alg, "1.0", "1.0.0.0"); c != 0 {
		t.Errorf("1.0 and 1.0.0.0 should be equal, got %d", c)
	}
	if c, _ := Compare(alg, "1.0.0+build.5", "1.0.0"); c != 0 {
		t.Errorf("build metadata should be ignored, got %d", c)
	}
}

func TestParseIntervals(t *testing.T) {
	tests := []struct {
		in      string
		ranged  bool
		count   int
		wantErr bool
	}{
		{"1.0", false, 0, false},
		{"[1.0]", true, 1, false},
		{"[1.0,2.0)", true, 1, false},
		{"[1.0,2.0),[3.0,)", true, 2, false},
		{"(1.0]", true, 0, true},
		{"[1.0", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ivs, ranged, err := parseIntervals(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if ranged != tt.ranged || len(ivs) != tt.count {
				t.Errorf("got ranged=%v count=%d, want %v %d", ranged, len(ivs), tt.ranged, tt.count)
			}
		})
	}
}
