// Package validator checks pack manifests and their referenced component
// files: JSON Schema structure, semantic consistency, and content security.
// Both layers must pass for a pack to be valid; warnings never flip the
// outcome.
package validator

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed manifest.schema.json
var manifestSchema string

// maxComponentSize caps a single component file.
const maxComponentSize = 1 << 20 // 1 MiB

// allowedExtensions is the component file extension allow-list.
var allowedExtensions = map[string]bool{
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".txt":  true,
}

// PackValidator validates packs against the manifest schema and the
// security policy for component content.
type PackValidator struct {
	fs     types.FS
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// New compiles the embedded manifest schema. A missing or corrupt schema
// is a fatal initialization error, not a per-pack failure.
func New(fs types.FS) (*PackValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "manifest schema is corrupt")
	}
	return &PackValidator{
		fs:     fs,
		schema: schema,
		logger: logging.GetLogger("validator"),
	}, nil
}

// ValidatePack runs both validation layers over a loaded pack. Component
// existence is checked through the owning source so single components can
// be located without another full load.
func (v *PackValidator) ValidatePack(ctx context.Context, pack *types.PackStructure, src types.PackSource) *types.ValidationResult {
	result := &types.ValidationResult{Valid: true}

	if pack == nil || pack.Manifest == nil {
		result.AddError("pack has no manifest")
		return result
	}

	v.validateSchema(pack, result)
	v.validateSemantics(pack.Manifest, result)
	v.validatePackPath(pack.Path, result)
	v.validateComponents(ctx, pack, src, result)

	v.logger.Debug().
		Str("pack", pack.Manifest.Name).
		Bool("valid", result.Valid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Msg("Pack validation completed")

	return result
}

// validateSchema checks the manifest against the embedded JSON Schema,
// preferring the raw on-disk bytes so absent fields are reported as absent.
func (v *PackValidator) validateSchema(pack *types.PackStructure, result *types.ValidationResult) {
	var loader gojsonschema.JSONLoader
	if data, err := v.fs.ReadFile(filepath.Join(pack.Path, "manifest.json")); err == nil {
		loader = gojsonschema.NewBytesLoader(data)
	} else {
		loader = gojsonschema.NewGoLoader(pack.Manifest)
	}

	schemaResult, err := v.schema.Validate(loader)
	if err != nil {
		result.AddError(fmt.Sprintf("manifest is not valid JSON: %v", err))
		return
	}

	for _, schemaErr := range schemaResult.Errors() {
		if schemaErr.Field() == "(root)" {
			result.AddError(schemaErr.Description())
			continue
		}
		result.AddError(fmt.Sprintf("%s: %s", schemaErr.Field(), schemaErr.Description()))
	}
}

// validateSemantics covers the rules the schema cannot express.
func (v *PackValidator) validateSemantics(manifest *types.PackManifest, result *types.ValidationResult) {
	seen := make(map[string]bool)
	for _, componentType := range types.AllComponentTypes {
		for _, component := range manifest.Components.Of(componentType) {
			if seen[component.Name] {
				result.AddError(fmt.Sprintf("duplicate component name: %s", component.Name))
			}
			seen[component.Name] = true

			if unsafeNamePattern.MatchString(component.Name) {
				result.AddError(fmt.Sprintf("component name contains unsafe characters: %s", component.Name))
			}
		}
	}

	for _, dep := range manifest.Dependencies {
		if dep == manifest.Name {
			result.AddError(fmt.Sprintf("pack %s cannot depend on itself", manifest.Name))
		}
	}

	if manifest.Configuration != nil && manifest.Configuration.DefaultMode != "" {
		declared := false
		for _, mode := range manifest.ModeNames() {
			if mode == manifest.Configuration.DefaultMode {
				declared = true
				break
			}
		}
		if !declared {
			result.AddError(fmt.Sprintf("configuration.defaultMode %q is not a declared mode",
				manifest.Configuration.DefaultMode))
		}
	}

	if manifest.PostInstall != nil {
		for _, command := range manifest.PostInstall.Commands {
			// Commands are never executed; flagging dangerous text lets
			// users reject the pack before installing it.
			if pattern := matchSuspiciousCommand(command); pattern != "" {
				result.AddError(fmt.Sprintf("post-install command contains suspicious pattern (%s): %s",
					pattern, command))
			}
		}
	}
}

// validatePackPath blocks traversal-style pack roots pointed at system
// directories.
func (v *PackValidator) validatePackPath(path string, result *types.ValidationResult) {
	if path == "" {
		return
	}
	if strings.Contains(path, "..") {
		result.AddError(fmt.Sprintf("pack path contains traversal segments: %s", path))
		return
	}
	normalized := filepath.ToSlash(path)
	for _, prefix := range forbiddenPathPrefixes {
		if normalized == prefix || strings.HasPrefix(normalized, prefix+"/") {
			result.AddError(fmt.Sprintf("pack path points at a forbidden location: %s", path))
			return
		}
	}
}

// validateComponents checks every declared component's file via the
// owning source.
func (v *PackValidator) validateComponents(ctx context.Context, pack *types.PackStructure, src types.PackSource, result *types.ValidationResult) {
	if src == nil {
		return
	}

	for _, componentType := range types.AllComponentTypes {
		for _, component := range pack.Manifest.Components.Of(componentType) {
			ref := fmt.Sprintf("%s/%s", componentType, component.Name)
			path := src.ComponentPath(pack, componentType, component.Name)

			if !src.HasComponent(ctx, pack, componentType, component.Name) {
				if component.Required {
					result.AddError(fmt.Sprintf("required component missing: %s", ref))
				}
				continue
			}

			if ext := filepath.Ext(path); !allowedExtensions[ext] {
				result.AddError(fmt.Sprintf("component %s has a disallowed extension: %s", ref, ext))
				continue
			}

			info, err := v.fs.Stat(path)
			if err == nil && info.Size() > maxComponentSize {
				result.AddError(fmt.Sprintf("component %s exceeds the size limit (%d bytes)", ref, info.Size()))
				continue
			}

			content, err := v.fs.ReadFile(path)
			if err != nil {
				result.AddError(fmt.Sprintf("component %s cannot be read: %v", ref, err))
				continue
			}
			if len(strings.TrimSpace(string(content))) == 0 {
				result.AddWarning(fmt.Sprintf("component %s is empty", ref))
				continue
			}
			if pattern := matchInjectedMarkup(content); pattern != "" {
				result.AddError(fmt.Sprintf("component %s contains suspicious content (%s)", ref, pattern))
			}
		}
	}
}

// ValidateManifestBytes validates raw manifest bytes against the schema
// alone, for callers that have not materialized a pack yet.
func (v *PackValidator) ValidateManifestBytes(data []byte) *types.ValidationResult {
	result := &types.ValidationResult{Valid: true}

	var manifest types.PackManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		result.AddError(fmt.Sprintf("manifest is not valid JSON: %v", err))
		return result
	}

	schemaResult, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		result.AddError(fmt.Sprintf("manifest is not valid JSON: %v", err))
		return result
	}
	for _, schemaErr := range schemaResult.Errors() {
		if schemaErr.Field() == "(root)" {
			result.AddError(schemaErr.Description())
			continue
		}
		result.AddError(fmt.Sprintf("%s: %s", schemaErr.Field(), schemaErr.Description()))
	}

	v.validateSemantics(&manifest, result)
	return result
}
