package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lifesignal/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateContact id 已存在
	ErrDuplicateContact = errors.New("duplicate contact id")
	// ErrInvalidContact 联系人缺少必填字段
	ErrInvalidContact = errors.New("invalid contact")
	// ErrPersist 持久化失败（内存中的修改仍然保留）
	ErrPersist = errors.New("failed to persist contacts")
)

// Store 联系人持久化契约
type Store interface {
	// Save 保存完整的联系人序列
	Save(ctx context.Context, contacts []models.EmergencyContact) error
	// Load 读取联系人，首次运行返回空
	Load(ctx context.Context) ([]models.EmergencyContact, error)
}

// Registry 紧急联系人注册表
// 内存状态在本次会话内是权威的，保存失败不回滚
type Registry struct {
	mu       sync.RWMutex
	contacts []models.EmergencyContact
	store    Store
	logger   *zap.Logger
}

// NewRegistry 创建注册表并从存储加载
// 读取失败或无数据都按"还没有联系人"处理
func NewRegistry(ctx context.Context, store Store, logger *zap.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		logger.Warn("Failed to load contacts, starting empty",
			zap.Error(err),
		)
		return r
	}
	r.contacts = r.unique(loaded)

	logger.Info("Contacts loaded",
		zap.Int("contact_count", len(r.contacts)),
	)
	return r
}

// Reload 从存储重新读取联系人，替换内存状态
// 其他进程（命令行）可能修改了同一存储；读取失败时保留当前状态并返回错误
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload contacts: %w", err)
	}
	r.contacts = r.unique(loaded)

	r.logger.Debug("Contacts reloaded",
		zap.Int("contact_count", len(r.contacts)),
	)
	return nil
}

// unique 丢弃重复或空 id，保持唯一性
func (r *Registry) unique(loaded []models.EmergencyContact) []models.EmergencyContact {
	seen := make(map[string]struct{}, len(loaded))
	result := make([]models.EmergencyContact, 0, len(loaded))
	for _, c := range loaded {
		if _, ok := seen[c.ID]; ok || c.ID == "" {
			r.logger.Warn("Skipping duplicate or empty contact id on load",
				zap.String("contact_id", c.ID),
			)
			continue
		}
		seen[c.ID] = struct{}{}
		result = append(result, c)
	}
	return result
}

// Add 添加联系人；id 为空时自动生成
func (r *Registry) Add(ctx context.Context, c models.EmergencyContact) (models.EmergencyContact, error) {
	if err := validate(c); err != nil {
		return models.EmergencyContact{}, err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(c.ID) >= 0 {
		return models.EmergencyContact{}, fmt.Errorf("%w: %s", ErrDuplicateContact, c.ID)
	}
	r.contacts = append(r.contacts, c)

	return c, r.save(ctx, "add", c.ID)
}

// Update 按 id 替换联系人；未知 id 为空操作
func (r *Registry) Update(ctx context.Context, c models.EmergencyContact) error {
	if err := validate(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(c.ID)
	if i < 0 {
		return nil
	}
	r.contacts[i] = c

	return r.save(ctx, "update", c.ID)
}

// Remove 删除联系人；未知 id 为空操作
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	r.contacts = append(r.contacts[:i], r.contacts[i+1:]...)

	return r.save(ctx, "remove", id)
}

// SetActive 启用/停用联系人；未知 id 为空操作
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 || r.contacts[i].IsActive == active {
		return nil
	}
	r.contacts[i].IsActive = active

	return r.save(ctx, "set_active", id)
}

// List 按添加顺序返回联系人副本
func (r *Registry) List(activeOnly bool) []models.EmergencyContact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.EmergencyContact, 0, len(r.contacts))
	for _, c := range r.contacts {
		if activeOnly && !c.IsActive {
			continue
		}
		result = append(result, c)
	}
	return result
}

// Get 按 id 查询
func (r *Registry) Get(id string) (models.EmergencyContact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return r.contacts[i], true
	}
	return models.EmergencyContact{}, false
}

func (r *Registry) indexOf(id string) int {
	for i, c := range r.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// save 持有写锁时调用，保证写入顺序与修改顺序一致
func (r *Registry) save(ctx context.Context, op, id string) error {
	snapshot := make([]models.EmergencyContact, len(r.contacts))
	copy(snapshot, r.contacts)

	if err := r.store.Save(ctx, snapshot); err != nil {
		r.logger.Error("Failed to save contacts",
			zap.String("operation", op),
			zap.String("contact_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	r.logger.Debug("Contacts saved",
		zap.String("operation", op),
		zap.String("contact_id", id),
		zap.Int("contact_count", len(snapshot)),
	)
	return nil
}

func validate(c models.EmergencyContact) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidContact)
	}
	if strings.TrimSpace(c.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidContact)
	}
	return nil
}
