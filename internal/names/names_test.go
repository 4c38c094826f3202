package names

import "testing"

func TestValidRecordName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"first", true},
		{"file.txt", true},
		{"a_b-c.d", true},
		{".hidden", false},
		{"trailing.", false},
		{"", false},
		{"has space", false},
		{"has/slash", false},
	}
	for _, c := range cases {
		if got := ValidRecordName(c.name); got != c.want {
			t.Errorf("ValidRecordName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidPod(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"alice", true},
		{"my-pod-1", true},
		{"a", false},
		{"UPPER", false},
		{"has_underscore", false},
	}
	for _, c := range cases {
		if got := ValidPod(c.name); got != c.want {
			t.Errorf("ValidPod(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidStreamSegment(t *testing.T) {
	if !ValidStreamSegment(".config") {
		t.Error(".config should be valid")
	}
	if !ValidStreamSegment("blog-posts") {
		t.Error("blog-posts should be valid")
	}
	if ValidStreamSegment("has.dot") {
		t.Error("has.dot should be invalid (only .config is a dotted segment)")
	}
}
