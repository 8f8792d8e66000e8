package nn

import "fmt"

// SceneClass is one of the five incident classes that the scene classifier can output
type SceneClass string

const (
	SceneFighting    SceneClass = "fighting"
	SceneRobbery     SceneClass = "robbery"
	SceneShoplifting SceneClass = "shoplifting"
	SceneExplosion   SceneClass = "explosion"
	SceneNormal      SceneClass = "normal"
)

// Scene classes, in the index order of the classifier's output layer
var SceneClasses = []SceneClass{
	SceneFighting,
	SceneRobbery,
	SceneShoplifting,
	SceneExplosion,
	SceneNormal,
}

// Evidence object classes, in the index order of the detector's output layer
const (
	EvidenceFire        = 0
	EvidenceSmoke       = 1
	EvidenceFighting    = 2
	EvidenceGun         = 3
	EvidenceKnife       = 4
	EvidenceShoplifting = 5
)

var EvidenceClasses = []string{
	"fire",
	"smoke",
	"fighting",
	"gun",
	"knife",
	"shoplifting",
}

func (c SceneClass) IsValid() bool {
	for _, s := range SceneClasses {
		if s == c {
			return true
		}
	}
	return false
}

// IsCrime is true for every class except normal
func (c SceneClass) IsCrime() bool {
	return c != SceneNormal
}

// Title returns the class name with a leading capital, eg "Robbery"
func (c SceneClass) Title() string {
	if c == "" {
		return ""
	}
	b := []byte(c)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// SceneClassFromIndex maps a classifier output index to its class
func SceneClassFromIndex(idx int) (SceneClass, error) {
	if idx < 0 || idx >= len(SceneClasses) {
		return "", fmt.Errorf("Scene class index %v out of range", idx)
	}
	return SceneClasses[idx], nil
}

// EvidenceLabel maps a detector class index to its object label
func EvidenceLabel(class int) (string, error) {
	if class < 0 || class >= len(EvidenceClasses) {
		return "", fmt.Errorf("Evidence class index %v out of range", class)
	}
	return EvidenceClasses[class], nil
}
