package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

// Build spec files.
const (
	SpecExt         = ".arag-json"
	DefaultSpecName = "arag_spec" + SpecExt

	// defaultModel in index_model selects the provider's default model.
	defaultModel = "<default>"
)

// BuildSpec describes a corpus to assemble in one step. Spec files are JSON;
// YAML is accepted too.
type BuildSpec struct {
	AragName       string   `json:"arag_name" yaml:"arag_name"`
	AragDest       string   `json:"arag_dest" yaml:"arag_dest"`
	ContentInclude []string `json:"content_include" yaml:"content_include"`
	CleanContent   bool     `json:"clean_content" yaml:"clean_content"`
	ChunkSize      int      `json:"chunk_size" yaml:"chunk_size"`
	IndexMethod    string   `json:"index_method" yaml:"index_method"`
	IndexModel     string   `json:"index_model" yaml:"index_model"`
	APIKey         string   `json:"api_key" yaml:"api_key"`
	OpenAIEndpoint string   `json:"openai_endpoint" yaml:"openai_endpoint"`
	AragVersion    string   `json:"arag_version" yaml:"arag_version"`
	ShouldPackage  bool     `json:"should_package" yaml:"should_package"`
}

// specFields lists the keys every spec file must carry.
var specFields = []string{
	"arag_name", "arag_dest", "content_include", "clean_content", "chunk_size",
	"index_method", "index_model", "api_key", "openai_endpoint", "arag_version",
	"should_package",
}

// DefaultBuildSpec returns the template written by WriteSpecTemplate.
func DefaultBuildSpec(version string) BuildSpec {
	return BuildSpec{
		AragName:       "example",
		AragDest:       "./example.arag",
		ContentInclude: []string{},
		CleanContent:   true,
		ChunkSize:      config.DefaultChunkSize,
		IndexMethod:    "local",
		IndexModel:     defaultModel,
		APIKey:         "",
		OpenAIEndpoint: embed.DefaultOpenAIEndpoint,
		AragVersion:    version,
		ShouldPackage:  true,
	}
}

// SpecPath normalizes a template destination: a directory gets the default
// file name, ".json" becomes ".arag-json", and any other name gains the
// extension.
func SpecPath(dest string) string {
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, DefaultSpecName)
	}
	switch {
	case strings.HasSuffix(dest, SpecExt):
		return dest
	case strings.HasSuffix(dest, ".json"):
		return strings.TrimSuffix(dest, ".json") + SpecExt
	default:
		return dest + SpecExt
	}
}

// SpecTemplateInput contains parameters for the WriteSpecTemplate operation.
type SpecTemplateInput struct {
	Dest      string // default: current directory
	Overwrite bool
}

// SpecTemplateOutput contains the result of the WriteSpecTemplate operation.
type SpecTemplateOutput struct {
	Path string    `json:"path"`
	Spec BuildSpec `json:"spec"`
}

// WriteSpecTemplate writes a build spec with default values.
func WriteSpecTemplate(cfg *config.Config, input SpecTemplateInput) (*SpecTemplateOutput, error) {
	dest := input.Dest
	if dest == "" {
		dest = "."
	}
	path := SpecPath(dest)
	if _, err := os.Lstat(path); err == nil && !input.Overwrite {
		return nil, errors.NewDestinationExists(path)
	}

	spec := DefaultBuildSpec(cfg.FormatVersion)
	data, err := json.MarshalIndent(spec, "", "    ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := corpus.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return nil, err
	}
	return &SpecTemplateOutput{Path: path, Spec: spec}, nil
}

// ReadBuildSpec parses and validates a spec file.
func ReadBuildSpec(path string) (*BuildSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid spec file %s: %v", path, err))
	}
	var missing []string
	for _, f := range specFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("spec file %s is missing fields: %s", path, strings.Join(missing, ", ")))
	}

	var spec BuildSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid spec file %s: %v", path, err))
	}
	if _, err := ValidateCorpusName(spec.AragName); err != nil {
		return nil, err
	}
	if spec.ChunkSize < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("chunk_size must be at least 1, got %d", spec.ChunkSize))
	}
	return &spec, nil
}

// providerOptions resolves the embedding settings for a spec. Model and
// endpoint overrides from cfg apply only when the spec uses the same method.
func (s *BuildSpec) providerOptions(cfg *config.Config) embed.Options {
	opts := embed.OptionsFromConfig(cfg)
	method := strings.ToLower(strings.TrimSpace(s.IndexMethod))
	if method != strings.ToLower(cfg.EmbedMethod) {
		opts.Model, opts.Endpoint, opts.Dimensions = "", "", 0
	}
	opts.Method = method

	if s.IndexModel != "" && s.IndexModel != defaultModel {
		opts.Model = s.IndexModel
	}
	if s.APIKey != "" {
		opts.APIKey = s.APIKey
	}
	if method == embed.MethodOpenAI && s.OpenAIEndpoint != "" {
		opts.Endpoint = s.OpenAIEndpoint
	}
	return opts
}

// FromSpecInput contains parameters for the CreateFromSpec operation.
type FromSpecInput struct {
	SpecPath string // required
}

// FromSpecOutput contains the result of the CreateFromSpec operation.
type FromSpecOutput struct {
	Root    string       `json:"root"`
	Archive string       `json:"archive,omitempty"`
	Added   int          `json:"added"`
	Build   *BuildOutput `json:"build"`
	Clean   *CleanOutput `json:"clean,omitempty"`
	Index   *IndexOutput `json:"index"`
	Pack    *PackOutput  `json:"pack,omitempty"`
}

// CreateFromSpec creates, fills, builds, indexes and optionally packs a
// corpus described by a spec file. Relative paths in the spec resolve
// against the spec file's directory.
func CreateFromSpec(ctx context.Context, cfg *config.Config, input FromSpecInput) (*FromSpecOutput, error) {
	if input.SpecPath == "" {
		return nil, errors.NewInvalidRequest("spec path is required")
	}
	spec, err := ReadBuildSpec(input.SpecPath)
	if err != nil {
		return nil, err
	}
	if spec.AragVersion != "" && spec.AragVersion != cfg.FormatVersion {
		logger.Debug("spec targets format version %s; writing version %s", spec.AragVersion, cfg.FormatVersion)
	}

	baseDir := filepath.Dir(input.SpecPath)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	dest := spec.AragDest
	if dest == "" {
		dest = spec.AragName + ".arag"
	}
	dest = resolve(dest)
	if spec.ShouldPackage {
		if _, err := os.Lstat(dest); err == nil {
			return nil, errors.NewDestinationExists(dest)
		}
	}

	// Resolve the provider before touching disk so bad credentials fail fast.
	provider, err := embed.New(spec.providerOptions(cfg))
	if err != nil {
		return nil, err
	}

	created, err := Create(CreateInput{Parent: filepath.Dir(dest), Name: spec.AragName})
	if err != nil {
		return nil, err
	}
	out := &FromSpecOutput{Root: created.Root}

	for _, inc := range spec.ContentInclude {
		added, err := AddContent(AddInput{Root: created.Root, Source: resolve(inc)})
		if err != nil {
			return nil, err
		}
		out.Added += len(added.Added)
	}

	out.Build, err = Build(ctx, cfg, BuildInput{
		Root:      created.Root,
		ChunkSize: spec.ChunkSize,
		Overwrite: true,
		Confirm:   true,
	})
	if err != nil {
		return nil, err
	}

	if spec.CleanContent {
		out.Clean, err = Clean(ctx, CleanInput{Root: created.Root})
		if err != nil {
			return nil, err
		}
	}

	out.Index, err = AttachEmbeddings(ctx, cfg, embed.NewCached(provider), IndexInput{Root: created.Root, Force: true})
	if err != nil {
		return nil, err
	}

	if spec.ShouldPackage {
		out.Pack, err = Pack(ctx, PackInput{Root: created.Root, Dest: dest})
		if err != nil {
			return nil, err
		}
		out.Archive = out.Pack.Path
	}
	return out, nil
}
