package fusion

import "github.com/scenesolver/scenesolver/pkg/nn"

// ObjectSet is a set of object labels
type ObjectSet map[string]bool

func ObjectsSeen(dets []Detection) ObjectSet {
	s := ObjectSet{}
	for _, d := range dets {
		s[d.Object] = true
	}
	return s
}

// Any returns true if any of labels is in the set
func (s ObjectSet) Any(labels ...string) bool {
	for _, l := range labels {
		if s[l] {
			return true
		}
	}
	return false
}

// First returns the first of labels that is in the set, or fallback
func (s ObjectSet) First(fallback string, labels ...string) string {
	for _, l := range labels {
		if s[l] {
			return l
		}
	}
	return fallback
}

// SelectEvidence returns a short phrase that justifies the final label
func SelectEvidence(label nn.SceneClass, seen ObjectSet) string {
	switch label {
	case nn.SceneExplosion:
		return seen.First("fire detected", "fire", "smoke")
	case nn.SceneRobbery:
		return seen.First("weapon spotted", "gun", "knife")
	case nn.SceneFighting:
		if seen["fighting"] {
			return "violent behavior detected"
		}
		return "signs of a physical altercation"
	case nn.SceneShoplifting:
		return "suspicious activity consistent with shoplifting"
	}
	return "none"
}
