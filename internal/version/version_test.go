package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForTesting(t *testing.T) {
	t.Cleanup(ForTesting("1.2.3-test"))
	assert.Equal(t, "1.2.3-test", String())
}

func TestDisplay(t *testing.T) {
	for in, want := range map[string]string{
		"":                "",
		"dev":             "dev",
		"0.3.0":           "v0.3.0",
		"v0.3.0":          "v0.3.0",
		"0.3.0-5-gabcdef": "v0.3.0",
		"0.3.0-rc1":       "v0.3.0-rc1",
	} {
		assert.Equal(t, want, Display(in), "Display(%q)", in)
	}
}

func TestParseEngine(t *testing.T) {
	cases := []struct {
		banner string
		want   string
		ok     bool
	}{
		{"wstunnel-cli 10.1.7\n", "10.1.7", true},
		{"wstunnel v9.7.4", "9.7.4", true},
		{"wstunnel 10.2", "10.2", true},
		{"wstunnel", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		e, ok := ParseEngine(tc.banner)
		assert.Equal(t, tc.ok, ok, tc.banner)
		if ok {
			assert.Equal(t, tc.want, e.String(), tc.banner)
		}
	}
}

func TestEngineWarning(t *testing.T) {
	t.Cleanup(ForTesting("0.4.0"))

	assert.Empty(t, EngineWarning("wstunnel-cli 10.1.7"))
	assert.Empty(t, EngineWarning("garbage"))

	got := EngineWarning("wstunnel 9.7.4")
	for _, want := range []string{"v0.4.0", "v9.7.4", "10.x"} {
		assert.Contains(t, got, want)
	}
}
