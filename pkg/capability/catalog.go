package capability

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/flowroute/pkg/config"
)

// Definition is a built-in capability: its spec, the key it needs and how to
// reach the service.
type Definition struct {
	Spec       Spec
	KeyName    string
	BaseURL    string
	NeedsURL   bool
	RatePerSec float64
	Endpoint   func(baseURL string) Endpoint
}

// Status reports whether a catalog capability is usable.
type Status struct {
	Spec       Spec `json:"spec"`
	Configured bool `json:"configured"`
}

// Catalog returns the built-in capability definitions sorted by name.
func Catalog() []Definition {
	defs := []Definition{
		{
			Spec: Spec{
				Name:        "speech_to_text",
				Description: "Transcribe spoken audio at a public URL into text",
				Params: []Param{
					{Name: "audio_url", Description: "URL of the audio file", Required: true},
					{Name: "language_code", Description: "BCP-47 language code, default en"},
				},
			},
			KeyName:    config.KeyAssemblyAI,
			BaseURL:    "https://api.assemblyai.com/v2",
			RatePerSec: 5,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:  fixedURL(base + "/transcript"),
					Auth: AuthRawHeader,
					Body: func(args map[string]any) (any, error) {
						return map[string]any{
							"audio_url":      args["audio_url"],
							"language_code":  stringArg(args, "language_code", "en"),
							"speaker_labels": true,
						}, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "text_to_speech",
				Description: "Synthesize speech audio from text",
				Params: []Param{
					{Name: "text", Description: "Text to speak", Required: true},
					{Name: "voice_id", Description: "Voice identifier"},
				},
			},
			KeyName:    config.KeyElevenLabs,
			BaseURL:    "https://api.elevenlabs.io/v1",
			RatePerSec: 2,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL: func(args map[string]any) (string, error) {
						voice := stringArg(args, "voice_id", "21m00Tcm4TlvDq8ikWAM")
						return base + "/text-to-speech/" + url.PathEscape(voice), nil
					},
					Auth:       AuthHeader,
					HeaderName: "xi-api-key",
					Accept:     "audio/mpeg",
					Body: func(args map[string]any) (any, error) {
						return map[string]any{
							"text":     args["text"],
							"model_id": "eleven_monolingual_v1",
							"voice_settings": map[string]any{
								"stability":        0.5,
								"similarity_boost": 0.5,
							},
						}, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "image_generate",
				Description: "Generate an image from a text prompt",
				Params: []Param{
					{Name: "prompt", Description: "Description of the image", Required: true},
					{Name: "negative_prompt", Description: "What to avoid in the image"},
				},
			},
			KeyName:    config.KeyStability,
			BaseURL:    "https://api.stability.ai/v1",
			RatePerSec: 1,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:    fixedURL(base + "/generation/stable-diffusion-xl-1024-v1-0/text-to-image"),
					Auth:   AuthBearer,
					Accept: "application/json",
					Body: func(args map[string]any) (any, error) {
						prompts := []map[string]any{{"text": args["prompt"], "weight": 1}}
						if neg := stringArg(args, "negative_prompt", ""); neg != "" {
							prompts = append(prompts, map[string]any{"text": neg, "weight": -1})
						}
						return map[string]any{
							"text_prompts": prompts,
							"cfg_scale":    7,
							"height":       1024,
							"width":        1024,
							"samples":      1,
							"steps":        30,
						}, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "image_analyze",
				Description: "Detect labels and text in an image at a public URL",
				Params: []Param{
					{Name: "image_url", Description: "URL of the image", Required: true},
				},
			},
			KeyName:    config.KeyGoogleVision,
			BaseURL:    "https://vision.googleapis.com/v1",
			RatePerSec: 5,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:        fixedURL(base + "/images:annotate"),
					Auth:       AuthQuery,
					HeaderName: "key",
					Body: func(args map[string]any) (any, error) {
						return map[string]any{
							"requests": []map[string]any{{
								"image": map[string]any{"source": map[string]any{"imageUri": args["image_url"]}},
								"features": []map[string]any{
									{"type": "LABEL_DETECTION", "maxResults": 10},
									{"type": "TEXT_DETECTION"},
								},
							}},
						}, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "video_generate",
				Description: "Render a personalized video from a script",
				Params: []Param{
					{Name: "script", Description: "What the presenter says", Required: true},
					{Name: "replica_id", Description: "Presenter replica identifier"},
				},
			},
			KeyName:    config.KeyTavus,
			BaseURL:    "https://tavusapi.com/v2",
			RatePerSec: 1,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:        fixedURL(base + "/videos"),
					Auth:       AuthHeader,
					HeaderName: "x-api-key",
					Body: func(args map[string]any) (any, error) {
						body := map[string]any{"script": args["script"]}
						if replica := stringArg(args, "replica_id", ""); replica != "" {
							body["replica_id"] = replica
						}
						return body, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "ml_predict",
				Description: "Run rows through a deployed prediction model",
				Params: []Param{
					{Name: "rows", Description: "List of input records", Required: true},
				},
			},
			KeyName:    config.KeyPeltarion,
			NeedsURL:   true,
			RatePerSec: 5,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:  fixedURL(base + "/predict"),
					Auth: AuthBearer,
					Body: func(args map[string]any) (any, error) {
						rows, ok := args["rows"].([]any)
						if !ok {
							return nil, fmt.Errorf("%w: ml_predict rows must be a list", ErrInvalidArguments)
						}
						return map[string]any{"instances": rows}, nil
					},
				}
			},
		},
		{
			Spec: Spec{
				Name:        "data_analytics",
				Description: "Analyze a dataset or business question and return insights",
				Params: []Param{
					{Name: "query", Description: "Question to answer", Required: true},
					{Name: "data", Description: "Optional list of records to analyze"},
				},
			},
			KeyName:    config.KeyLumen,
			NeedsURL:   true,
			RatePerSec: 5,
			Endpoint: func(base string) Endpoint {
				return Endpoint{
					URL:  fixedURL(base + "/analyze"),
					Auth: AuthBearer,
					Body: func(args map[string]any) (any, error) {
						body := map[string]any{
							"query":          args["query"],
							"analysis_type":  stringArg(args, "analysis_type", "general"),
							"insights_count": 5,
						}
						if data, ok := args["data"]; ok {
							body["data"] = data
						}
						return body, nil
					},
				}
			},
		},
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Spec.Name < defs[j].Spec.Name })
	return defs
}

// NewRegistryFromConfig registers every catalog capability whose key (and,
// where needed, base URL) is configured. All providers share one HTTP client.
func NewRegistryFromConfig(cfg *config.Config, logf func(format string, args ...any)) (*Registry, error) {
	if logf == nil {
		logf = log.Printf
	}
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var overrides map[string]config.CapabilityConfig
	if cfg != nil && cfg.RoutingConfig != nil {
		overrides = cfg.RoutingConfig.Capabilities
	}

	var providers []Provider
	for _, def := range Catalog() {
		override := overrides[def.Spec.Name]
		base := def.BaseURL
		if override.BaseURL != "" {
			base = override.BaseURL
		}
		if !cfg.HasKey(def.KeyName) {
			logf("[capability] %s not configured: missing %s key", def.Spec.Name, def.KeyName)
			continue
		}
		if base == "" {
			logf("[capability] %s not configured: base_url required", def.Spec.Name)
			continue
		}

		ratePerSec := def.RatePerSec
		if override.RatePerSecond > 0 {
			ratePerSec = override.RatePerSecond
		}
		p, err := NewHTTPProvider(def.Spec, def.Endpoint(strings.TrimRight(base, "/")), cfg.APIKey(def.KeyName),
			WithHTTPClient(client),
			WithRateLimit(ratePerSec, override.Burst),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return NewRegistry(providers...)
}

// Statuses reports every catalog capability, plus any extra registered ones,
// with whether it is configured in reg.
func Statuses(reg *Registry) []Status {
	seen := make(map[string]bool)
	var out []Status
	for _, def := range Catalog() {
		seen[def.Spec.Name] = true
		out = append(out, Status{Spec: def.Spec, Configured: reg.Has(def.Spec.Name)})
	}
	for _, spec := range reg.Specs() {
		if !seen[spec.Name] {
			out = append(out, Status{Spec: spec, Configured: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Name < out[j].Spec.Name })
	return out
}

func fixedURL(u string) func(map[string]any) (string, error) {
	return func(map[string]any) (string, error) {
		return u, nil
	}
}

func stringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
