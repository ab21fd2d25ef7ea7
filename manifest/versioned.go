package manifest

import "github.com/opencontainers/image-spec/specs-go"

func specsVersioned(v int) specs.Versioned {
	return specs.Versioned{SchemaVersion: v}
}
