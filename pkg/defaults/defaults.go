// Package defaults holds the built-in document templates: scene entity
// trees, render/physics settings and the scope-dependent settings
// documents. Every function returns a fresh value so callers can patch
// the result without poisoning the template.
package defaults

import (
	"strings"

	"github.com/pixlland/workspace-sync/pkg/models"
)

// Skybox bootstrap constants. The env atlas named by SkyboxFilename is
// uploaded once per project/branch and referenced from new scenes.
const (
	SkyboxAssetName = "Pixlland Default Skybox"
	SkyboxFilename  = "pixlland-default-skybox-env-atlas.png"
	SkyboxAssetType = "cubemap"
	SkyboxMime      = "image/png"
)

func editorSettings() map[string]any {
	return map[string]any{
		"gridDivisions":         32,
		"gridDivisionSize":      1,
		"snapIncrement":         1,
		"gizmoSize":             1,
		"gizmoPreset":           "default",
		"cameraGrabDepth":       false,
		"cameraGrabColor":       false,
		"cameraNearClip":        0.1,
		"cameraFarClip":         1000,
		"cameraClearColor":      []any{0.2, 0.2, 0.2, 1},
		"cameraToneMapping":     0,
		"cameraGammaCorrection": 1,
		"showFog":               true,
		"iconSize":              1,
	}
}

// ProjectSettings is the template for full project settings documents.
func ProjectSettings() models.JSONMap {
	return models.JSONMap{
		"engineV2":            true,
		"useLegacyScripts":    false,
		"scripts":             []any{},
		"loadingScreenScript": nil,
		"editor":              editorSettings(),
	}
}

// ProjectOnlySettings is the project-scoped subset (no editor state).
func ProjectOnlySettings() models.JSONMap {
	return models.JSONMap{
		"engineV2":            true,
		"useLegacyScripts":    false,
		"scripts":             []any{},
		"loadingScreenScript": nil,
	}
}

// ProjectUserSettings is the per-user-per-project template.
func ProjectUserSettings() models.JSONMap {
	return models.JSONMap{
		"editor":           editorSettings(),
		"branch":           nil,
		"favoriteBranches": []any{},
	}
}

// UserSettings is the per-user template.
func UserSettings() models.JSONMap {
	return models.JSONMap{
		"editor": editorSettings(),
	}
}

// SettingsFor selects the default settings document for an identity
// string. The prefix encodes the scope; unknown identities fall back to
// the project-only shape. Order matters: "project_settings_" must win
// over the bare "project_" prefix.
func SettingsFor(id string) models.JSONMap {
	switch {
	case strings.HasPrefix(id, "project_settings_"):
		return ProjectOnlySettings()
	case strings.HasPrefix(id, "project_"):
		return ProjectUserSettings()
	case strings.HasPrefix(id, "user_"):
		return UserSettings()
	case strings.HasPrefix(id, "project-private_"):
		return models.JSONMap{}
	default:
		return ProjectOnlySettings()
	}
}

// SceneSettings is the render/physics template seeded into new scenes.
func SceneSettings() models.JSONMap {
	return models.JSONMap{
		"physics": map[string]any{
			"gravity": []any{0, -9.8, 0},
		},
		"render": map[string]any{
			"fog_end":                1000,
			"fog_start":              1,
			"global_ambient":         []any{0.3, 0.3, 0.3},
			"fog_color":              []any{0, 0, 0},
			"fog":                    "none",
			"fog_density":            0.01,
			"gamma_correction":       1,
			"tonemapping":            0,
			"exposure":               1.2,
			"skyboxIntensity":        1,
			"skyboxRotation":         []any{0, 0, 0},
			"skyboxMip":              0,
			"lightmapSizeMultiplier": 16,
			"lightmapMaxResolution":  2048,
			"lightmapMode":           1,
		},
	}
}

// SceneEntities is the root/camera/light entity tree seeded into new
// scenes.
func SceneEntities() models.JSONMap {
	return models.JSONMap{
		"root": map[string]any{
			"name":        "Root",
			"parent":      nil,
			"resource_id": "root",
			"tags":        []any{},
			"enabled":     true,
			"components":  map[string]any{},
			"scale":       []any{1, 1, 1},
			"position":    []any{0, 0, 0},
			"rotation":    []any{0, 0, 0},
			"children":    []any{"camera", "light"},
		},
		"camera": map[string]any{
			"name":        "Camera",
			"parent":      "root",
			"resource_id": "camera",
			"tags":        []any{},
			"enabled":     true,
			"components": map[string]any{
				"camera": map[string]any{
					"fov":              45,
					"projection":       0,
					"clearColor":       []any{0.22, 0.34, 0.52, 1},
					"clearColorBuffer": true,
					"clearDepthBuffer": true,
					"frustumCulling":   true,
					"enabled":          true,
					"orthoHeight":      4,
					"farClip":          1000,
					"nearClip":         0.1,
					"priority":         0,
					"rect":             []any{0, 0, 1, 1},
					"layers":           []any{0, 1, 2, 3, 4},
				},
			},
			"scale":    []any{1, 1, 1},
			"position": []any{4, 3.5, 4},
			"rotation": []any{-30, 45, 0},
			"children": []any{},
		},
		"light": map[string]any{
			"name":        "Directional Light",
			"parent":      "root",
			"resource_id": "light",
			"tags":        []any{},
			"enabled":     true,
			"components": map[string]any{
				"light": map[string]any{
					"enabled":           true,
					"bake":              false,
					"bakeDir":           true,
					"affectDynamic":     true,
					"affectLightmapped": false,
					"isStatic":          false,
					"color":             []any{1, 1, 1},
					"intensity":         1.5,
					"type":              "directional",
					"shadowDistance":    40,
					"range":             8,
					"innerConeAngle":    40,
					"outerConeAngle":    45,
					"shape":             0,
					"falloffMode":       0,
					"castShadows":       true,
					"shadowUpdateMode":  2,
					"shadowType":        1,
					"shadowResolution":  2048,
					"shadowBias":        0.2,
					"normalOffsetBias":  0.05,
					"vsmBlurMode":       1,
					"vsmBlurSize":       11,
					"vsmBias":           0.01,
					"cookieAsset":       nil,
					"cookieIntensity":   1,
					"cookieFalloff":     true,
					"cookieChannel":     "rgb",
					"cookieAngle":       0,
					"cookieScale":       []any{1, 1},
					"cookieOffset":      []any{0, 0},
					"layers":            []any{0},
				},
			},
			"scale":    []any{1, 1, 1},
			"position": []any{3, 5, -3},
			"rotation": []any{45, 45, 0},
			"children": []any{},
		},
	}
}

// SkyboxData is the minimal cubemap payload for the default skybox
// asset; the env atlas file carries the actual prefiltered map.
func SkyboxData() models.JSONMap {
	return models.JSONMap{
		"name":       SkyboxAssetName,
		"textures":   []any{nil, nil, nil, nil, nil, nil},
		"type":       "rgbp",
		"minFilter":  1,
		"magFilter":  1,
		"anisotropy": 1,
		"rgbm":       false,
		"mipmaps":    false,
	}
}

// SkyboxDataDrifted reports whether an existing skybox asset's data has
// diverged from the template on the fields the engine depends on.
func SkyboxDataDrifted(current models.JSONMap) bool {
	want := SkyboxData()
	for _, key := range []string{"type", "minFilter", "magFilter", "mipmaps", "rgbm"} {
		if !equalScalar(current[key], want[key]) {
			return true
		}
	}
	_, hasTextures := current["textures"].([]any)
	return !hasTextures
}

func equalScalar(a, b any) bool {
	if an, ok := models.ToInt64(a); ok {
		bn, ok := models.ToInt64(b)
		return ok && an == bn
	}
	return a == b
}
