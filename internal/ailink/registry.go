package ailink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jordancj7/folio/internal/ailink/driver"
	"github.com/jordancj7/folio/internal/ailink/driver/gemini"
	"github.com/jordancj7/folio/internal/ailink/driver/openai"
	"github.com/jordancj7/folio/internal/ailink/prompt"
)

// Registry resolves roles to provider instances and caches one driver per
// provider:credential pair.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
}

// ResolvedProvider is a provider instance ready to serve a single call.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	BaseURL    string
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve picks the provider routed for role and prepares its driver.
func (r *Registry) Resolve(role string, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	providerID, providerCfg, err := r.resolveProvider(role)
	if err != nil {
		return nil, err
	}
	return r.prepare(providerID, providerCfg, promptDef, modelOverride)
}

// ResolveID prepares the named provider instance, bypassing role routing.
func (r *Registry) ResolveID(providerID string, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("ailink registry not configured")
	}
	providerID = strings.TrimSpace(providerID)
	providerCfg, ok := r.cfg.Providers[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerID)
	}
	if !providerCfg.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", providerID)
	}
	return r.prepare(providerID, providerCfg, promptDef, modelOverride)
}

// Fallbacks returns the fallback provider ids configured for role.
func (r *Registry) Fallbacks(role string) []string {
	if r == nil {
		return nil
	}
	return r.cfg.Fallbacks[strings.TrimSpace(role)]
}

// DefaultTimeout returns the configured per-call timeout.
func (r *Registry) DefaultTimeout() time.Duration {
	if r == nil {
		return 0
	}
	return r.cfg.DefaultTimeout
}

func (r *Registry) prepare(providerID string, providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	cred, credKey, err := selectCredential(providerID, providerCfg, func(tier string, n int) int {
		return r.rrIndex(providerID+":"+tier, n)
	})
	if err != nil {
		return nil, err
	}

	drv, err := r.driverFor(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}

	model, err := resolveModel(providerCfg, promptDef, modelOverride)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if client, ok := drv.(*openai.Client); ok {
		baseURL = strings.TrimSpace(client.BaseURL)
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      model,
		BaseURL:    baseURL,
	}, nil
}

func (r *Registry) resolveProvider(role string) (string, ProviderInstanceConfig, error) {
	if r == nil {
		return "", ProviderInstanceConfig{}, fmt.Errorf("ailink registry not configured")
	}

	role = strings.TrimSpace(role)
	if role != "" {
		if providerID, ok := r.cfg.Routing[role]; ok {
			providerID = strings.TrimSpace(providerID)
			if providerID != "" {
				providerCfg, ok := r.cfg.Providers[providerID]
				if !ok {
					return "", ProviderInstanceConfig{}, fmt.Errorf("unknown provider %q for role %q", providerID, role)
				}
				if !providerCfg.Enabled {
					return "", ProviderInstanceConfig{}, fmt.Errorf("provider %q is disabled", providerID)
				}
				return providerID, providerCfg, nil
			}
		}

		for providerID, providerCfg := range r.cfg.Providers {
			if !providerCfg.Enabled {
				continue
			}
			if contains(providerCfg.Roles, role) {
				return providerID, providerCfg, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		providerCfg, ok := r.cfg.Providers[id]
		if !ok {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q not configured", id)
		}
		if !providerCfg.Enabled {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q is disabled", id)
		}
		return id, providerCfg, nil
	}

	var onlyID string
	var onlyCfg ProviderInstanceConfig
	for providerID, providerCfg := range r.cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}
		if onlyID != "" {
			return "", ProviderInstanceConfig{}, fmt.Errorf("no provider routing configured")
		}
		onlyID = providerID
		onlyCfg = providerCfg
	}
	if onlyID == "" {
		return "", ProviderInstanceConfig{}, fmt.Errorf("no enabled providers configured")
	}
	return onlyID, onlyCfg, nil
}

// errNoCredential marks a provider that cannot authenticate. The service
// skips such providers when walking fallbacks.
var errNoCredential = errors.New("no usable credential")

// credentialSlot is a usable credential with its position in config order.
type credentialSlot struct {
	CredentialConfig
	index int
}

// key names the slot in the driver cache. Unlabeled credentials are keyed by
// position so two of them never share a driver.
func (s credentialSlot) key() string {
	if label := strings.TrimSpace(s.Label); label != "" {
		return label
	}
	return "#" + strconv.Itoa(s.index)
}

// usableCredentials keeps config order. A labeled credential must be enabled;
// an unlabeled one, typically set through CREDENTIALS_<n>_API_KEY, only needs
// a key.
func usableCredentials(creds []CredentialConfig) []credentialSlot {
	slots := make([]credentialSlot, 0, len(creds))
	for i, cred := range creds {
		if strings.TrimSpace(cred.APIKey) == "" {
			continue
		}
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		slots = append(slots, credentialSlot{CredentialConfig: cred, index: i})
	}
	return slots
}

// selectCredential picks the credential for one call: the default_credential
// label when it is usable, otherwise the highest priority tier, rotated when
// selection_policy is round_robin.
func selectCredential(providerID string, cfg ProviderInstanceConfig, rrNext func(tier string, n int) int) (CredentialConfig, string, error) {
	slots := usableCredentials(cfg.Credentials)
	if len(slots) == 0 {
		return CredentialConfig{}, "", fmt.Errorf("provider %q: %w", providerID, errNoCredential)
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, slot := range slots {
			if strings.EqualFold(strings.TrimSpace(slot.Label), label) {
				return slot.CredentialConfig, slot.key(), nil
			}
		}
	}

	highest := slots[0].Priority
	for _, slot := range slots[1:] {
		highest = max(highest, slot.Priority)
	}
	tier := make([]credentialSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.Priority == highest {
			tier = append(tier, slot)
		}
	}

	pick := tier[0]
	if strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), "round_robin") && rrNext != nil {
		pick = tier[rrNext(strconv.Itoa(highest), len(tier))]
	}
	return pick.CredentialConfig, pick.key(), nil
}

func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, fmt.Errorf("provider id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers == nil {
		r.drivers = map[string]driver.Driver{}
	}
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	driverKey := providerID
	if strings.TrimSpace(credKey) != "" {
		driverKey += ":" + credKey
	}
	if drv, ok := r.drivers[driverKey]; ok {
		return drv, nil
	}

	providerType := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	switch providerType {
	case "gemini":
		// The service bounds each call with its context deadline.
		client := gemini.NewClient(providerCfg.BaseURL, cred.APIKey)
		r.drivers[driverKey] = client
		return client, nil
	case "openai":
		client := openai.NewClient(providerCfg.BaseURL, cred.APIKey)
		r.drivers[driverKey] = client
		return client, nil
	default:
		if providerType == "" {
			providerType = "(unset)"
		}
		return nil, fmt.Errorf("unsupported ai_provider %q for provider %q", providerType, providerID)
	}
}

func resolveModel(providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, override string) (string, error) {
	model := strings.TrimSpace(override)
	if model != "" {
		return model, nil
	}

	if promptDef != nil {
		if models := preferredModels(promptDef); len(models) > 0 {
			model = strings.TrimSpace(models[0])
			if model != "" {
				return model, nil
			}
		}
	}

	if providerCfg.Models != nil {
		model = strings.TrimSpace(providerCfg.Models["default"])
		if model != "" {
			return model, nil
		}
	}

	return "", fmt.Errorf("model not configured")
}

func preferredModels(promptDef *prompt.Prompt) []string {
	if promptDef == nil {
		return nil
	}

	value, ok := promptDef.Config.ProviderHints["preferred_models"]
	if !ok || value == nil {
		return nil
	}

	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		models := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				models = append(models, s)
			}
		}
		return models
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}

func (r *Registry) rrIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key] = r.rr[key] + 1
	return idx
}

func contains(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
