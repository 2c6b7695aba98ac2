package mockproviders

import (
	_ "embed"
)

//go:embed fixtures/demo.yaml
var demoYAML []byte

// Demo returns the bundled fixtures used by the mock-providers command and
// the end-to-end tests.
func Demo() Fixtures {
	f, err := ParseFixtures(demoYAML)
	if err != nil {
		panic(err)
	}
	return f
}
