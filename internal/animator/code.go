package animator

import (
	"errors"
	"regexp"
	"strings"
)

var ErrNoSceneClass = errors.New("could not find Scene class in generated code")

var sceneClass = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*Scene\s*\)`)

// CleanCode strips the markdown fences models like to wrap code in.
func CleanCode(raw string) string {
	code := strings.ReplaceAll(raw, "```python", "")
	code = strings.ReplaceAll(code, "```py", "")
	code = strings.ReplaceAll(code, "```", "")
	return strings.TrimSpace(code)
}

// SceneClass returns the name of the first class deriving from Scene.
func SceneClass(code string) (string, error) {
	m := sceneClass.FindStringSubmatch(code)
	if m == nil {
		return "", ErrNoSceneClass
	}
	return m[1], nil
}
