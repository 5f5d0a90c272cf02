package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
)

const keyCacheTTL = 5 * time.Minute

var (
	ErrKeyNotFound  = errors.New("api key not found")
	ErrInvalidTier  = errors.New("unknown tier")
	ErrNoKeyStorage = errors.New("api key storage is not configured")
)

type KeyRepository interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
	FindByHash(ctx context.Context, hash string) (*models.APIKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// KeyCache holds validated database keys. storage.RedisClient and
// storage.MemoryStore both satisfy it.
type KeyCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// KeyInfo is what admission needs to know about a valid key
type KeyInfo struct {
	Fingerprint string      `json:"fingerprint"`
	Tier        models.Tier `json:"tier"`
	Name        string      `json:"name,omitempty"`
	// uuid.Nil for keys from configuration
	ID uuid.UUID `json:"id"`
}

func (k *KeyInfo) Stored() bool {
	return k.ID != uuid.Nil
}

type APIKeyService struct {
	configured map[string]models.Tier
	repository KeyRepository
	cache      KeyCache
	logger     *zap.Logger
}

// NewAPIKeyService validates against the configured keys first and then, when
// repo is not nil, against the api_keys table. cache may be nil.
func NewAPIKeyService(configured map[string]models.Tier, repo KeyRepository, cache KeyCache, logger *zap.Logger) *APIKeyService {
	if logger == nil {
		logger = zap.NewNop()
	}

	hashed := make(map[string]models.Tier, len(configured))
	for key, tier := range configured {
		hashed[HashKey(key)] = tier
	}

	return &APIKeyService{
		configured: hashed,
		repository: repo,
		cache:      cache,
		logger:     logger,
	}
}

// HashKey returns the hex SHA-256 of key
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies key in counters and logs
func Fingerprint(key string) string {
	return models.FingerprintOf(HashKey(key))
}

// Validate returns nil without error when key is unknown or inactive
func (s *APIKeyService) Validate(ctx context.Context, key string) (*KeyInfo, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	keyHash := HashKey(key)
	if tier, ok := s.configured[keyHash]; ok {
		return &KeyInfo{
			Fingerprint: models.FingerprintOf(keyHash),
			Tier:        tier,
		}, nil
	}

	if s.repository == nil {
		return nil, nil
	}

	cacheKey := keyCacheKey(keyHash)
	if info := s.fromCache(ctx, cacheKey); info != nil {
		return info, nil
	}

	apiKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("find api key: %w", err)
	}
	if apiKey == nil {
		return nil, nil
	}

	info := &KeyInfo{
		Fingerprint: models.FingerprintOf(keyHash),
		Tier:        models.ParseTier(string(apiKey.Tier)),
		Name:        apiKey.Name,
		ID:          apiKey.ID,
	}
	s.toCache(ctx, cacheKey, info)

	return info, nil
}

func (s *APIKeyService) fromCache(ctx context.Context, cacheKey string) *KeyInfo {
	if s.cache == nil {
		return nil
	}

	cached, err := s.cache.Get(ctx, cacheKey)
	if err != nil || cached == "" {
		return nil
	}

	var info KeyInfo
	if err := json.Unmarshal([]byte(cached), &info); err != nil {
		return nil
	}
	return &info
}

func (s *APIKeyService) toCache(ctx context.Context, cacheKey string, info *KeyInfo) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, string(data), keyCacheTTL); err != nil {
		s.logger.Warn("failed to cache api key", zap.Error(err))
	}
}

// Create stores a new key and returns its plaintext, which is never shown again
func (s *APIKeyService) Create(ctx context.Context, name, owner, tier string) (string, *models.APIKey, error) {
	if s.repository == nil {
		return "", nil, ErrNoKeyStorage
	}

	t := models.TierBasic
	if tier != "" {
		var ok bool
		if t, ok = models.LookupTier(tier); !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
		}
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	key := "fg_" + base64.RawURLEncoding.EncodeToString(keyBytes)

	apiKey := &models.APIKey{
		KeyHash:  HashKey(key),
		Name:     name,
		Owner:    owner,
		Tier:     t,
		IsActive: true,
	}
	if err := s.repository.Create(ctx, apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}
	apiKey.Fingerprint = models.FingerprintOf(apiKey.KeyHash)

	return key, apiKey, nil
}

func (s *APIKeyService) Get(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	if s.repository == nil {
		return nil, ErrNoKeyStorage
	}

	apiKey, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, ErrKeyNotFound
	}
	return apiKey, nil
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	if s.repository == nil {
		return nil, ErrNoKeyStorage
	}
	return s.repository.List(ctx)
}

// KeyUpdate holds the mutable fields of a key. Nil fields are left unchanged.
type KeyUpdate struct {
	Name     *string `json:"name"`
	Tier     *string `json:"tier"`
	IsActive *bool   `json:"is_active"`
}

func (s *APIKeyService) Update(ctx context.Context, id uuid.UUID, upd KeyUpdate) (*models.APIKey, error) {
	apiKey, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Tier != nil {
		t, ok := models.LookupTier(*upd.Tier)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, *upd.Tier)
		}
		updates["tier"] = t
	}
	if upd.IsActive != nil {
		updates["is_active"] = *upd.IsActive
	}
	if len(updates) == 0 {
		return apiKey, nil
	}

	if err := s.repository.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, apiKey.KeyHash)

	return s.Get(ctx, id)
}

func (s *APIKeyService) Delete(ctx context.Context, id uuid.UUID) error {
	apiKey, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCache(ctx, apiKey.KeyHash)
	return nil
}

// Records that a stored key was used. Configured keys are ignored.
func (s *APIKeyService) TouchLastUsed(ctx context.Context, info *KeyInfo) {
	if s.repository == nil || info == nil || !info.Stored() {
		return
	}
	if err := s.repository.UpdateLastUsed(ctx, info.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update api key last use",
			zap.String("key_id", info.ID.String()),
			zap.Error(err),
		)
	}
}

// ResolveFingerprint accepts a stored key's id or a fingerprint and returns
// the fingerprint its counters are kept under
func (s *APIKeyService) ResolveFingerprint(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if id, err := uuid.Parse(ref); err == nil {
		apiKey, err := s.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return models.FingerprintOf(apiKey.KeyHash), nil
	}

	if len(ref) != models.FingerprintLength {
		return "", ErrKeyNotFound
	}
	if _, err := hex.DecodeString(ref); err != nil {
		return "", ErrKeyNotFound
	}
	return strings.ToLower(ref), nil
}

func (s *APIKeyService) invalidateCache(ctx context.Context, keyHash string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keyCacheKey(keyHash)); err != nil {
		s.logger.Warn("failed to invalidate api key cache", zap.Error(err))
	}
}

func keyCacheKey(keyHash string) string {
	return fmt.Sprintf("apikey:cache:%s", keyHash)
}
