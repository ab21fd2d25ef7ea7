package manifest

// Platform describes the architecture/OS a manifest-list entry runs on,
// including the deprecated Docker-only "features" list that OCI dropped
// from imgspecv1.Platform — which is why this package defines its own
// type rather than reusing image-spec's for Docker-flavored lists.
// Grounded on original_source/client/v2_2/docker_image_list_.py's
// Platform class and its can_run() method.
type Platform struct {
	Architecture string   `json:"architecture"`
	OS           string   `json:"os"`
	OSVersion    string   `json:"os.version,omitempty"`
	OSFeatures   []string `json:"os.features,omitempty"`
	Variant      string   `json:"variant,omitempty"`
	Features     []string `json:"features,omitempty"`
}

// CanRun reports whether an image built for p can run in an environment
// requiring "required". Architecture and OS must match exactly;
// OSVersion and Variant must match exactly whenever required specifies
// them; OSFeatures and Features on p must be a superset of required's.
func (p Platform) CanRun(required Platform) bool {
	if p.Architecture != required.Architecture || p.OS != required.OS {
		return false
	}
	if required.OSVersion != "" && p.OSVersion != required.OSVersion {
		return false
	}
	if required.Variant != "" && p.Variant != required.Variant {
		return false
	}
	if !isSuperset(p.OSFeatures, required.OSFeatures) {
		return false
	}
	if !isSuperset(p.Features, required.Features) {
		return false
	}
	return true
}

func isSuperset(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
